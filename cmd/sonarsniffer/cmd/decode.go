/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nautidog/sonarsniffer/pkg/codec"
	"github.com/nautidog/sonarsniffer/pkg/decode"
	"github.com/nautidog/sonarsniffer/pkg/dispatch"
	"github.com/nautidog/sonarsniffer/pkg/format"
)

var (
	decodeMode      string
	decodeExecution string
	decodeLimit     uint64
	decodeCSV       string
	decodeProgress  bool
)

// payloadPreviewLen bounds the payload hex column in CSV output.
const payloadPreviewLen = 16

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:   "decode <file>",
	Short: "Decode a survey log into a record stream",
	Long: `Decode a survey log file and print the session summary. In strict
mode the session aborts on the first integrity violation; in tolerant mode
the decoder resynchronizes past corrupted spans and recovers as many
records as possible.

Example:
  sonarsniffer decode --mode tolerant --csv records.csv survey.rsd`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		mode, err := decode.ParseMode(modeOrConfig())
		if err != nil {
			return err
		}
		execMode, err := dispatch.ParseExecutionMode(executionOrConfig())
		if err != nil {
			return err
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		stat, err := file.Stat()
		if err != nil {
			return err
		}

		header := make([]byte, format.SniffLen)
		n, _ := file.ReadAt(header, 0)
		table := format.DefaultTable()
		kind := table.Sniff(header[:n], path)
		if kind == format.Unknown {
			return fmt.Errorf("unrecognized log format: %s", path)
		}

		opts, err := cfg.Options()
		if err != nil {
			return err
		}
		opts.Mode = mode
		opts.MaxRecords = decodeLimit
		if decodeProgress {
			opts.Progress = func(p decode.Progress) {
				fmt.Fprintf(os.Stderr, "\r%d records, %d bytes", p.Records, p.Bytes)
			}
		}

		var sinkFn decode.Sink
		var csvWriter *csv.Writer
		if decodeCSV != "" {
			out, err := os.Create(decodeCSV)
			if err != nil {
				return err
			}
			defer out.Close()
			csvWriter = csv.NewWriter(out)
			defer csvWriter.Flush()
			if err := csvWriter.Write([]string{"ofs", "type", "channel_id", "size", "crc32", "payload_hex"}); err != nil {
				return err
			}
			sinkFn = csvSink(csvWriter)
		}

		dispatcher := dispatch.NewDispatcher(dispatch.Config{
			Table: table,
			Mode:  execMode,
		})

		sum, err := dispatcher.Decode(cmd.Context(), kind, file, stat.Size(), opts, sinkFn)
		if decodeProgress {
			fmt.Fprintln(os.Stderr)
		}
		if sum != nil {
			printSummary(sum)
		}
		if err != nil {
			return fmt.Errorf("decode failed: %w", err)
		}
		return nil
	},
}

func modeOrConfig() string {
	if decodeMode != "" {
		return decodeMode
	}
	return cfg.Decode.Mode
}

func executionOrConfig() string {
	if decodeExecution != "" {
		return decodeExecution
	}
	return cfg.Execution
}

func csvSink(w *csv.Writer) decode.Sink {
	return func(rec *codec.Record) error {
		preview := rec.Payload
		if len(preview) > payloadPreviewLen {
			preview = preview[:payloadPreviewLen]
		}
		return w.Write([]string{
			strconv.FormatInt(rec.Offset, 10),
			strconv.FormatUint(uint64(rec.Type), 10),
			strconv.FormatUint(uint64(rec.Channel), 10),
			strconv.Itoa(len(rec.Payload)),
			fmt.Sprintf("%08x", rec.CRC32),
			hex.EncodeToString(preview),
		})
	}
}

func printSummary(sum *decode.Summary) {
	fmt.Printf("Session:        %s\n", sum.SessionID)
	fmt.Printf("Format:         %s\n", sum.Kind)
	fmt.Printf("Mode:           %s\n", sum.Mode)
	fmt.Printf("Status:         %s\n", sum.Status)
	fmt.Printf("Records:        %d\n", sum.RecordsEmitted)
	fmt.Printf("Bytes decoded:  %d\n", sum.BytesDecoded)
	fmt.Printf("Bytes skipped:  %d\n", sum.BytesSkipped)
	if sum.PaddingBytes > 0 {
		fmt.Printf("Padding bytes:  %d\n", sum.PaddingBytes)
	}
	fmt.Printf("Execution path: %s\n", sum.ExecutionPath)
	if sum.FallbackReason != "" {
		fmt.Printf("Fallback:       %s\n", sum.FallbackReason)
	}
	if len(sum.CorruptionEvents) > 0 {
		fmt.Printf("Corrupted spans:\n")
		for _, d := range sum.CorruptionEvents {
			fmt.Printf("  offset=%d length=%d reason=%s recovered=%v\n",
				d.Offset, d.Length, d.Reason, d.Recovered)
		}
	}
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().StringVarP(&decodeMode, "mode", "m", "", "Decode mode: strict or tolerant")
	decodeCmd.Flags().StringVar(&decodeExecution, "execution", "", "Execution mode: allow-native or force-reference")
	decodeCmd.Flags().Uint64Var(&decodeLimit, "limit", 0, "Stop after this many records (0 = all)")
	decodeCmd.Flags().StringVar(&decodeCSV, "csv", "", "Write decoded records to a CSV file")
	decodeCmd.Flags().BoolVar(&decodeProgress, "progress", false, "Print decode progress to stderr")
}
