// Command operate runs an operator pipeline over a file, or standard input,
// and prints a preview of the result or commits it back.
//
//	operate --op '{"kind":"lines"}' --op '{"kind":"sort"}' data.txt
//	operate --commit --op '{"kind":"lines"}' --op '{"kind":"dedup","scope":"global"}' data.txt
//	cat access.log | operate --op '{"kind":"table","delimiter":" "}' --op '{"kind":"aggregate","by":"c9"}' -
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
