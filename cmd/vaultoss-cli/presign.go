package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

func runPresign(args []string) {
	if len(args) == 0 {
		fmt.Println(`Usage: vaultoss-cli presign <subcommand> [--expires=<ttl>]

Subcommands:
  get <bucket> <key>                          Presigned download URL
  put <bucket> <key> [--content-type=<type>]  Presigned upload URL
  head <bucket> <key>                         Presigned HEAD URL
  delete <bucket> <key>                       Presigned DELETE URL
  part <bucket> <key> <upload-id> <number>    Presigned URL for one multipart part

--expires takes seconds or a duration such as 15m (default: 3600, max 7 days)`)
		os.Exit(1)
	}

	pos, opts := splitArgs(args[1:])
	ttl := time.Hour
	if v, ok := opts["expires"]; ok {
		d, err := parseTTL(v)
		if err != nil {
			fatal(err.Error())
		}
		ttl = d
	}

	ctx := context.Background()
	c := newClient(ctx)
	defer c.Close()

	switch args[0] {
	case "get", "put", "head", "delete":
		if len(pos) < 2 {
			fatal(fmt.Sprintf("presign %s requires: <bucket> <key>", args[0]))
		}
		if args[0] == "put" && opts["content-type"] != "" {
			url, err := c.Presign.PutURL(ctx, pos[0], pos[1], ttl, opts["content-type"])
			if err != nil {
				fatal(err.Error())
			}
			fmt.Println(url)
			return
		}
		req, err := c.Presign.URL(ctx, strings.ToUpper(args[0]), pos[0], pos[1], ttl)
		if err != nil {
			fatal(err.Error())
		}
		printSignedHeaders(req.Header)
		fmt.Println(req.URL)
	case "part":
		if len(pos) < 4 {
			fatal("presign part requires: <bucket> <key> <upload-id> <number>")
		}
		n, err := strconv.Atoi(pos[3])
		if err != nil {
			fatal("part number must be a number")
		}
		url, err := c.Presign.PartURL(ctx, pos[0], pos[1], pos[2], int32(n), ttl)
		if err != nil {
			fatal(err.Error())
		}
		fmt.Println(url)
	default:
		fatal("unknown presign subcommand: " + args[0])
	}
}

// printSignedHeaders writes headers the caller must send besides Host to stderr.
func printSignedHeaders(h http.Header) {
	names := make([]string, 0, len(h))
	for name := range h {
		if strings.EqualFold(name, "Host") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "%s: %s\n", name, strings.Join(h[name], ","))
	}
}
