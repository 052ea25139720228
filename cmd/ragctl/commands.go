package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	queryTopK  int
	queryFiles []string
)

func init() {
	tenantCmd.AddCommand(tenantCreateCmd)
	tenantCmd.AddCommand(tenantDeleteCmd)
	tenantCmd.AddCommand(tenantExistsCmd)

	queryCmd.Flags().IntVar(&queryTopK, "top-k", 5, "number of passages to retrieve")
	queryCmd.Flags().StringArrayVar(&queryFiles, "file", nil, "restrict retrieval to this document (repeatable)")
}

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage tenants",
}

var tenantCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a new tenant and print its token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var resp struct {
			Token string `json:"token"`
		}
		if err := newClient().do(cmd.Context(), http.MethodPost, "/tenants", nil, nil, nil, "", &resp); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

var tenantDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete the tenant and all of its documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c := newClient()
		if err := c.requireTenant(); err != nil {
			return err
		}
		var resp map[string]any
		if err := c.do(cmd.Context(), http.MethodDelete, "/tenants", nil, nil, nil, "", &resp); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

var tenantExistsCmd = &cobra.Command{
	Use:   "exists",
	Short: "Report whether the tenant exists",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c := newClient()
		if err := c.requireTenant(); err != nil {
			return err
		}
		err := c.do(cmd.Context(), http.MethodHead, "/tenants", nil, nil, nil, "", nil)
		var apiErr *apiError
		switch {
		case err == nil:
			return printJSON(cmd.OutOrStdout(), map[string]bool{"exists": true})
		case errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound:
			return printJSON(cmd.OutOrStdout(), map[string]bool{"exists": false})
		default:
			return err
		}
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file.pdf>",
	Short: "Upload a PDF document",
	Long: `Upload a PDF document to the tenant. The document is named after the file
with its .pdf extension removed.

Examples:
  ragctl upload --tenant $TOKEN ./policy.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		if err := c.requireTenant(); err != nil {
			return err
		}

		body, contentType, err := multipartFile(args[0])
		if err != nil {
			return err
		}
		var resp map[string]any
		if err := c.do(cmd.Context(), http.MethodPost, "/documents", nil, nil, body, contentType, &resp); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tenant's documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c := newClient()
		if err := c.requireTenant(); err != nil {
			return err
		}
		var resp map[string]any
		if err := c.do(cmd.Context(), http.MethodGet, "/documents", nil, nil, nil, "", &resp); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <filename>",
	Short: "Delete a document by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		if err := c.requireTenant(); err != nil {
			return err
		}
		var resp map[string]any
		headers := map[string]string{"filename": args[0]}
		if err := c.do(cmd.Context(), http.MethodDelete, "/documents", nil, headers, nil, "", &resp); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Ask a question over the tenant's documents",
	Long: `Ask a question. The answer is generated from the passages most similar to it.

Examples:
  ragctl query "What is the refund window?"
  ragctl query --top-k 3 --file policy --file faq "How do refunds work?"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		if err := c.requireTenant(); err != nil {
			return err
		}
		q := url.Values{
			"query": {args[0]},
			"top_k": {strconv.Itoa(queryTopK)},
		}
		for _, f := range queryFiles {
			q.Add("filenames", f)
		}
		var resp map[string]any
		if err := c.do(cmd.Context(), http.MethodPost, "/query", q, nil, nil, "", &resp); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

// multipartFile encodes path as the "file" field of a multipart body.
func multipartFile(path string) (io.Reader, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
