package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/byytelope/deptproxy/internal/admin"
)

type Handler struct {
	client *admin.Client
	out    io.Writer
	err    io.Writer
}

func (h *Handler) List() error {
	res, err := h.client.ListEntries(context.Background())
	if err != nil {
		fmt.Fprintln(h.err, "List error:", err)
		return err
	}

	tw := tabwriter.NewWriter(h.out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLOT\tSIZE\tVALID\tSTORED\tEXPIRES")

	for _, e := range res.Entries {
		stored, exp := "-", "-"
		if !e.StoredAt.IsZero() {
			stored = e.StoredAt.Format(time.RFC3339)
		}
		if !e.ExpiresAt.IsZero() {
			exp = e.ExpiresAt.Format(time.RFC3339)
		}

		fmt.Fprintf(tw, "%s\t%d\t%t\t%s\t%s\n", e.Slot, e.Size, e.Valid, stored, exp)
	}

	tw.Flush()
	fmt.Fprintf(h.out, "ttl=%s hits=%d misses=%d\n", res.TTL, res.Hits, res.Misses)
	return nil
}

func (h *Handler) Clear() error {
	n, err := h.client.ClearCache(context.Background())
	if err != nil {
		fmt.Fprintln(h.err, "Clear error:", err)
		return err
	}

	fmt.Fprintf(h.out, "OK cleared %d valid slot(s)\n", n)
	return nil
}

func (h *Handler) Health(service string) error {
	status, err := h.client.Health(context.Background(), service)
	if err != nil {
		fmt.Fprintln(h.err, "Health error:", err)
		return err
	}

	fmt.Fprintln(h.out, status)
	if status != "SERVING" {
		return errors.New("not serving")
	}
	return nil
}
