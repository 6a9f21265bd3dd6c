// Command zstream compresses and decompresses files in the zstd frame
// format, and trains dictionaries from sample files.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/miretskiy/zstream"
)

var (
	flagLevel    int
	flagChecksum bool
	flagWorkers  int
	flagOutput   string
	flagDict     string
	flagForce    bool
	flagMaxSize  int
	flagVerbose  bool
)

func main() {
	root := &cobra.Command{
		Use:           "zstream",
		Short:         "zstd streaming compression tool",
		Version:       zstream.Version(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if flagVerbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)
			zstream.SetLogger(logger)
		},
	}
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	compressCmd := &cobra.Command{
		Use:   "compress <file>...",
		Short: "Compress files, writing <file>.zst next to each input",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCompress,
	}
	compressCmd.Flags().IntVarP(&flagLevel, "level", "l", zstream.DefaultLevel, "compression level")
	compressCmd.Flags().BoolVar(&flagChecksum, "checksum", true, "write content checksums")
	compressCmd.Flags().IntVar(&flagWorkers, "workers", 0, "engine worker threads per file (0 = single-threaded)")
	compressCmd.Flags().StringVar(&flagDict, "dict", "", "dictionary file")
	compressCmd.Flags().BoolVarP(&flagForce, "force", "f", false, "overwrite existing outputs")

	decompressCmd := &cobra.Command{
		Use:   "decompress <file>...",
		Short: "Decompress .zst files, stripping the suffix",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runDecompress,
	}
	decompressCmd.Flags().StringVar(&flagDict, "dict", "", "dictionary file")
	decompressCmd.Flags().BoolVarP(&flagForce, "force", "f", false, "overwrite existing outputs")

	trainCmd := &cobra.Command{
		Use:   "train <sample>...",
		Short: "Train a dictionary from sample files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runTrain,
	}
	trainCmd.Flags().StringVarP(&flagOutput, "output", "o", "dictionary", "output dictionary path")
	trainCmd.Flags().IntVar(&flagMaxSize, "max-size", 112640, "maximum dictionary size in bytes")

	root.AddCommand(compressCmd, decompressCmd, trainCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadDict() (*zstream.Dict, error) {
	if flagDict == "" {
		return nil, nil
	}
	data, err := os.ReadFile(flagDict)
	if err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	return zstream.NewDict(data), nil
}

func runCompress(cmd *cobra.Command, args []string) error {
	dict, err := loadDict()
	if err != nil {
		return err
	}

	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, path := range args {
		path := path
		g.Go(func() error {
			return compressFile(path, dict)
		})
	}
	return g.Wait()
}

func compressFile(path string, dict *zstream.Dict) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := createOutput(path + ".zst")
	if err != nil {
		return err
	}
	defer out.Close()

	opts := []zstream.WriterOption{
		zstream.WithLevel(flagLevel),
		zstream.WithChecksum(flagChecksum),
		zstream.WithWorkers(flagWorkers),
	}
	if dict != nil {
		opts = append(opts, zstream.WithDict(dict))
	}
	w, err := zstream.NewWriter(out, opts...)
	if err != nil {
		return err
	}
	defer w.Close()

	read, err := io.Copy(w, in)
	if err != nil {
		return fmt.Errorf("compress %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("compress %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		return err
	}

	info, err := os.Stat(path + ".zst")
	if err != nil {
		return err
	}
	slog.Info("compressed",
		"file", path,
		"in", humanize.IBytes(uint64(read)),
		"out", humanize.IBytes(uint64(info.Size())),
		"ratio", fmt.Sprintf("%.2fx", ratio(read, info.Size())))
	return nil
}

func runDecompress(cmd *cobra.Command, args []string) error {
	dict, err := loadDict()
	if err != nil {
		return err
	}

	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, path := range args {
		path := path
		g.Go(func() error {
			return decompressFile(path, dict)
		})
	}
	return g.Wait()
}

func decompressFile(path string, dict *zstream.Dict) error {
	target, ok := trimSuffix(path)
	if !ok {
		return fmt.Errorf("decompress %s: missing .zst suffix", path)
	}

	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	var opts []zstream.ReaderOption
	if dict != nil {
		opts = append(opts, zstream.WithDict(dict))
	}
	r, err := zstream.NewReader(in, opts...)
	if err != nil {
		return err
	}
	defer r.Close()

	out, err := createOutput(target)
	if err != nil {
		return err
	}
	defer out.Close()

	written, err := io.Copy(out, r)
	if err != nil {
		return fmt.Errorf("decompress %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	slog.Info("decompressed", "file", path, "out", humanize.IBytes(uint64(written)))
	return nil
}

func runTrain(cmd *cobra.Command, args []string) error {
	dict, err := zstream.TrainDictFromFiles(flagMaxSize, args...)
	if err != nil {
		return err
	}
	f, err := createOutput(flagOutput)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(dict.Bytes()); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	slog.Info("trained dictionary",
		"samples", len(args),
		"size", humanize.IBytes(uint64(dict.Len())),
		"output", flagOutput)
	return nil
}

func createOutput(path string) (*os.File, error) {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !flagForce {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w (use --force to overwrite)", path, err)
	}
	return f, nil
}

func trimSuffix(path string) (string, bool) {
	const suffix = ".zst"
	if len(path) <= len(suffix) || path[len(path)-len(suffix):] != suffix {
		return "", false
	}
	return path[:len(path)-len(suffix)], true
}

func ratio(in, out int64) float64 {
	if out == 0 {
		return 0
	}
	return float64(in) / float64(out)
}
