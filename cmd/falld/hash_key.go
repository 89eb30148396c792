package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/auth"
)

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key",
	Short: "Read a device key from stdin and print its bcrypt hash for devices.device_key_hash",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return errors.New("no device key on stdin")
		}
		hash, err := auth.HashDeviceKey(strings.TrimRight(line, "\r\n"))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashKeyCmd)
}
