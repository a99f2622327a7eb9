package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bobbyrathoree/macscope/internal/auth"
)

func newHashSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-secret <plaintext>",
		Short: "Hash an admin secret for the ADMIN_SECRET_HASH environment variable",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("hash-secret takes exactly one argument: the plaintext secret")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashSecret(args[0])
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
}
