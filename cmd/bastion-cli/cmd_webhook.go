package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"resty.dev/v3"

	"bastion-server/internal/domain/billing"
)

const signatureHeader = "x-paystack-signature"

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Paystack webhook helpers",
}

var webhookSignCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a webhook payload",
	Long: `Compute the HMAC-SHA512 signature Paystack sends in the x-paystack-signature header.
With --url the signed payload is also posted to a running server.`,
	RunE: runWebhookSign,
}

func init() {
	webhookCmd.AddCommand(webhookSignCmd)

	webhookSignCmd.Flags().String("secret", os.Getenv("PAYSTACK_SECRET_KEY"), "Paystack secret key (default: $PAYSTACK_SECRET_KEY)")
	webhookSignCmd.Flags().StringP("file", "f", "-", "Payload file, - for stdin")
	webhookSignCmd.Flags().String("url", "", "Post the signed payload to this webhook URL")
}

func runWebhookSign(cmd *cobra.Command, args []string) error {
	secret, _ := cmd.Flags().GetString("secret")
	file, _ := cmd.Flags().GetString("file")
	target, _ := cmd.Flags().GetString("url")
	if secret == "" {
		return fmt.Errorf("--secret or PAYSTACK_SECRET_KEY is required")
	}

	body, err := readPayload(cmd.InOrStdin(), file)
	if err != nil {
		return err
	}
	signature := billing.SignPayload(secret, body)
	fmt.Fprintln(cmd.OutOrStdout(), signature)

	if target == "" {
		return nil
	}

	client := resty.New()
	defer client.Close()
	resp, err := client.R().
		SetContext(cmd.Context()).
		SetHeader("Content-Type", "application/json").
		SetHeader(signatureHeader, signature).
		SetBody(body).
		Post(target)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", resp.StatusCode(), resp.String())
	return nil
}

func readPayload(stdin io.Reader, file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(stdin)
	}
	body, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return body, nil
}
