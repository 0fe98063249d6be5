/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nautidog/sonarsniffer/pkg/decode"
	"github.com/nautidog/sonarsniffer/pkg/format"
)

var sniffVerbose bool

// sniffCmd represents the sniff command
var sniffCmd = &cobra.Command{
	Use:   "sniff <file>",
	Short: "Classify a survey log file's format",
	Long: `Classify a survey log file into a known device format from its
header bytes and filename extension.

Example:
  sonarsniffer sniff survey.rsd`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		header := make([]byte, format.SniffLen)
		n, _ := file.ReadAt(header, 0)

		table := format.DefaultTable()
		kind := table.Sniff(header[:n], path)
		fmt.Printf("Format: %s\n", kind)

		if !sniffVerbose {
			return nil
		}

		stat, err := file.Stat()
		if err != nil {
			return err
		}
		fmt.Printf("Size: %d bytes (%.1f MB)\n", stat.Size(), float64(stat.Size())/1024.0/1024.0)

		if spec := table.Lookup(kind); spec != nil {
			count, err := decode.EstimateRecordCount(file, stat.Size(), spec)
			if err != nil {
				return err
			}
			fmt.Printf("Estimated records: %d\n", count)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sniffCmd)
	sniffCmd.Flags().BoolVarP(&sniffVerbose, "verbose", "v", false, "Print file size and estimated record count")
}
