// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cardinalhq/shardcsv/config"
	"github.com/cardinalhq/shardcsv/internal/cloudstorage"
	"github.com/cardinalhq/shardcsv/internal/filereader"
	"github.com/cardinalhq/shardcsv/internal/keys"
	"github.com/cardinalhq/shardcsv/internal/logctx"
	"github.com/cardinalhq/shardcsv/internal/naming"
	"github.com/cardinalhq/shardcsv/internal/shard"
	"github.com/cardinalhq/shardcsv/internal/sink"
)

var splitCmd = &cobra.Command{
	Use:   "split [flags] [input ...]",
	Short: "Split CSV input into one file per key",
	Long: `Split reads each input (or stdin when none is given, or "-") and writes
every row to a file chosen by its key column. Inputs may be gzip or zstd
compressed. All inputs must share one layout.`,
	RunE: runSplitCmd,
}

// splitFlags maps command line flags to configuration keys.
var splitFlags = map[string]string{
	"key":             "shard.column",
	"fallback":        "shard.fallback",
	"buckets":         "shard.buckets",
	"lowercase":       "shard.lowercase",
	"split-rows":      "shard.split_rows",
	"split-size":      "shard.split_size",
	"delimiter":       "input.delimiter",
	"header":          "input.header",
	"lazy-quotes":     "input.lazy_quotes",
	"output":          "output.dir",
	"layout":          "output.layout",
	"template":        "output.template",
	"compression":     "output.compression",
	"out-delimiter":   "output.delimiter",
	"crlf":            "output.crlf",
	"sync":            "output.sync",
	"manifest":        "output.manifest",
	"upload":          "upload.target",
	"upload-region":   "upload.region",
	"upload-endpoint": "upload.endpoint",
	"upload-role":     "upload.role",
	"path-style":      "upload.path_style",
	"insecure-tls":    "upload.insecure_tls",
	"storage-account": "upload.storage_account",
	"upload-workers":  "upload.concurrency",
	"delete-local":    "upload.delete_local",
	"upload-aborted":  "upload.include_aborted",
}

func init() {
	d := config.DefaultConfig()
	f := splitCmd.Flags()

	f.StringP("key", "k", d.Shard.Column, "Key column, as a zero-based index or a header name")
	f.String("fallback", d.Shard.Fallback, "Key used for rows that lack the key column")
	f.Int("buckets", d.Shard.Buckets, "Hash keys into this many buckets instead of one file per value")
	f.Bool("lowercase", d.Shard.Lowercase, "Fold keys to lower case")
	f.Int64("split-rows", d.Shard.SplitRows, "Start a new file for a key after this many rows (0 disables)")
	f.String("split-size", d.Shard.SplitSize, `Start a new file for a key after this much output, e.g. "64MiB"`)

	f.StringP("delimiter", "d", d.Input.Delimiter, `Input delimiter: a character, or "tab", "pipe", "semicolon"`)
	f.Bool("header", d.Input.Header, "Treat the first row as a header and copy it into every output file")
	f.Bool("lazy-quotes", d.Input.LazyQuotes, "Accept bare quotes in unquoted fields")

	f.StringP("output", "o", d.Output.Dir, "Output directory")
	f.String("layout", d.Output.Layout, `File layout: "flat" ({key}-{seq}) or "hive" (column=key/part-NNNN)`)
	f.String("template", d.Output.Template, "File name template with {key}, {seq}, {seq:N} and {run}; overrides --layout")
	f.StringP("compression", "z", d.Output.Compression, "Output compression: none, gzip or zstd")
	f.String("out-delimiter", d.Output.Delimiter, "Output delimiter, defaults to the input delimiter")
	f.Bool("crlf", d.Output.CRLF, "Terminate output rows with CRLF")
	f.Bool("sync", d.Output.Sync, "fsync each file before reporting it complete")
	f.String("manifest", d.Output.Manifest, "Write a YAML manifest of finished files to this path")

	f.String("upload", d.Upload.Target, "Publish finished files to s3://, gs://, azblob:// or file:// URL")
	f.String("upload-region", d.Upload.Region, "Region for S3 uploads")
	f.String("upload-endpoint", d.Upload.Endpoint, "Custom S3 or Azure endpoint")
	f.String("upload-role", d.Upload.Role, "IAM role to assume for S3 uploads")
	f.Bool("path-style", d.Upload.PathStyle, "Use path-style S3 addressing")
	f.Bool("insecure-tls", d.Upload.InsecureTLS, "Skip TLS verification for S3 uploads")
	f.String("storage-account", d.Upload.StorageAccount, "Azure storage account")
	f.Int("upload-workers", d.Upload.Concurrency, "Concurrent uploads")
	f.Bool("delete-local", d.Upload.DeleteLocal, "Remove local files once uploaded")
	f.Bool("upload-aborted", d.Upload.IncludeAborted, "Also upload files closed by a failed run")
}

func runSplitCmd(cmd *cobra.Command, args []string) error {
	v := viper.New()
	for flag, key := range splitFlags {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	cfg, err := config.LoadWith(v)
	if err != nil {
		return err
	}

	ctx, doneFx, err := setupTelemetry("shardcsv")
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		if err := doneFx(); err != nil {
			slog.Error("Error shutting down telemetry", slog.Any("error", err))
		}
	}()

	res, err := runSplit(ctx, cfg, args, cmd.InOrStdin())
	if res != nil && cfg.Output.Manifest != "" {
		if merr := writeManifest(cfg.Output.Manifest, res); merr != nil {
			slog.Error("Failed to write manifest", slog.String("path", cfg.Output.Manifest), slog.Any("error", merr))
			if err == nil {
				err = merr
			}
		}
	}
	if res != nil {
		slog.Info("Split finished",
			slog.Int64("records", res.Stats.Records),
			slog.Int("shards", res.Stats.Shards),
			slog.Int64("files", res.Stats.FilesCompleted),
			slog.Int("uploaded", len(res.Uploaded)),
			slog.String("output", humanize.IBytes(uint64(res.Bytes))))
	}
	return err
}

// splitResult summarizes a finished run.
type splitResult struct {
	Stats    shard.Stats
	Bytes    int64
	Files    []shard.Completion
	Uploaded []cloudstorage.Uploaded
}

// runSplit shards inputs (stdin when empty) according to cfg.
func runSplit(ctx context.Context, cfg *config.Config, inputs []string, stdin io.Reader) (*splitResult, error) {
	splitting, err := shard.ParseSplitting(cfg.Shard.SplitRows, cfg.Shard.SplitSize)
	if err != nil {
		return nil, err
	}

	sources, closeSources, err := openSources(cfg, inputs, stdin)
	if err != nil {
		return nil, err
	}
	defer closeSources()

	var header []string
	if len(sources) > 0 {
		header = sources[0].Header()
	}

	selector, err := keys.Spec{
		Column:    cfg.Shard.Column,
		Fallback:  cfg.Shard.Fallback,
		Buckets:   cfg.Shard.Buckets,
		Lowercase: cfg.Shard.Lowercase,
	}.Build(header)
	if err != nil {
		return nil, err
	}

	namer, err := buildNaming(cfg, header)
	if err != nil {
		return nil, err
	}
	if cfg.Output.Template != "" && splitting.Enabled() && !naming.HasSequence(cfg.Output.Template) {
		logctx.FromContext(ctx).Warn("Naming template has no {seq}; split files of a key will overwrite each other",
			slog.String("template", cfg.Output.Template))
	}

	var fileOpts []sink.FileOption
	if cfg.Output.Sync {
		fileOpts = append(fileOpts, sink.WithSync())
	}
	factory, err := sink.ForCompression(cfg.Output.Compression, sink.File(fileOpts...))
	if err != nil {
		return nil, err
	}

	res := &splitResult{}
	record := func(_ context.Context, c shard.Completion) error {
		res.Files = append(res.Files, c)
		res.Bytes += c.Bytes
		return nil
	}

	uploader, err := buildUploader(ctx, cfg)
	if err != nil {
		return nil, err
	}
	completion := shard.CompletionFunc(record)
	if uploader != nil {
		completion = shard.ChainCompletions(record, uploader.Complete)
	}

	opts := []shard.Option{
		shard.WithDelimiter(cfg.OutputDelimiter()),
		shard.WithSplitting(splitting),
		shard.WithStreamFactory(factory),
		shard.WithCompletion(completion),
	}
	if cfg.Input.Header {
		opts = append(opts, shard.WithSourceHeader())
	}
	if cfg.Output.CRLF {
		opts = append(opts, shard.WithCRLF())
	}

	w, err := shard.NewWriter(selector, namer, opts...)
	if err != nil {
		return nil, err
	}

	ctx = logctx.With(ctx, slog.String("output", cfg.Output.Dir))
	logctx.FromContext(ctx).Info("Splitting input",
		slog.Int("inputs", len(sources)),
		slog.String("key", cfg.Shard.Column),
		slog.String("splitting", splitting.String()))

	_, procErr := w.ProcessAll(ctx, sources...)
	res.Stats = w.Stats()

	if uploader != nil {
		uploaded, upErr := uploader.Wait()
		res.Uploaded = uploaded
		switch {
		case upErr == nil:
		case procErr == nil:
			procErr = upErr
		default:
			procErr = multierror.Append(procErr, upErr)
		}
	}
	return res, procErr
}

func openSources(cfg *config.Config, inputs []string, stdin io.Reader) ([]filereader.Source, func(), error) {
	comma, err := config.ParseDelimiter(cfg.Input.Delimiter)
	if err != nil {
		return nil, nil, err
	}
	opts := filereader.DefaultCSVOptions()
	opts.Comma = comma
	opts.HasHeader = cfg.Input.Header
	opts.LazyQuotes = cfg.Input.LazyQuotes

	if len(inputs) == 0 {
		inputs = []string{"-"}
	}

	var (
		sources []filereader.Source
		readers []*filereader.CSVReader
	)
	closeAll := func() {
		for _, r := range readers {
			_ = r.Close()
		}
	}

	for _, in := range inputs {
		var (
			r   *filereader.CSVReader
			err error
		)
		if in == "-" {
			r, err = openStdin(stdin, opts)
		} else {
			r, err = filereader.OpenFile(in, opts)
		}
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		readers = append(readers, r)
		sources = append(sources, r)
	}
	return sources, closeAll, nil
}

func openStdin(stdin io.Reader, opts filereader.CSVOptions) (*filereader.CSVReader, error) {
	if stdin == nil {
		return nil, errors.New("no input files and no stdin")
	}
	rc, err := filereader.NewDecompressingReader(io.NopCloser(stdin))
	if err != nil {
		return nil, fmt.Errorf("stdin: %w", err)
	}
	return filereader.NewCSVReader(rc, opts)
}

func buildNaming(cfg *config.Config, header []string) (shard.NamingFunc, error) {
	if cfg.Output.Template != "" {
		fn, err := naming.Template(cfg.Output.Dir, cfg.Output.Template)
		if err != nil {
			return nil, err
		}
		return fn, nil
	}

	ext := ".csv"
	if cfg.OutputDelimiter() == '\t' {
		ext = ".tsv"
	}
	ext += sink.Extension(cfg.Output.Compression)

	if cfg.Output.Layout == "hive" {
		return naming.Hive(cfg.Output.Dir, partitionColumn(cfg.Shard.Column, header), ext), nil
	}
	return naming.Default(cfg.Output.Dir, ext), nil
}

// partitionColumn names the hive partition after the key column.
func partitionColumn(column string, header []string) string {
	idx, err := strconv.Atoi(column)
	if err != nil {
		return column
	}
	if idx >= 0 && idx < len(header) {
		return header[idx]
	}
	return "key"
}

func buildUploader(ctx context.Context, cfg *config.Config) (*cloudstorage.Uploader, error) {
	if cfg.Upload.Target == "" {
		return nil, nil
	}
	target, err := cloudstorage.ParseTarget(cfg.Upload.Target)
	if err != nil {
		return nil, err
	}
	target.Region = cfg.Upload.Region
	target.Endpoint = cfg.Upload.Endpoint
	target.Role = cfg.Upload.Role
	target.PathStyle = cfg.Upload.PathStyle
	target.InsecureTLS = cfg.Upload.InsecureTLS
	target.StorageAccount = cfg.Upload.StorageAccount

	client, err := cloudstorage.NewClient(ctx, target)
	if err != nil {
		return nil, err
	}

	opts := []cloudstorage.UploaderOption{
		cloudstorage.WithBaseDir(filepath.Clean(cfg.Output.Dir)),
		cloudstorage.WithConcurrency(cfg.Upload.Concurrency),
	}
	bucket := target.Bucket
	if target.Provider != cloudstorage.ProviderFile {
		opts = append(opts, cloudstorage.WithPrefix(target.Prefix))
	}
	if cfg.Upload.DeleteLocal {
		opts = append(opts, cloudstorage.WithDeleteLocal())
	}
	if cfg.Upload.IncludeAborted {
		opts = append(opts, cloudstorage.WithUploadAborted())
	}
	return cloudstorage.NewUploader(client, bucket, opts...), nil
}
