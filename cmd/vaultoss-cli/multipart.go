package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/eniz1806/VaultOSS/internal/multipart"
)

func runMultipart(args []string) {
	if len(args) == 0 {
		fmt.Println(`Usage: vaultoss-cli multipart <subcommand>

Subcommands:
  upload <bucket> <key> <file> [--part-size=<MB>] [--content-type=<type>]   Upload a file in parts
  list <bucket>                                                            List in-progress uploads
  parts <bucket> <key> <upload-id>                                         List uploaded parts
  abort <bucket> <key> <upload-id>                                         Abort an upload`)
		os.Exit(1)
	}

	switch args[0] {
	case "upload", "put":
		multipartUpload(args[1:])
	case "list", "ls":
		multipartList(args[1:])
	case "parts":
		multipartParts(args[1:])
	case "abort", "rm":
		multipartAbort(args[1:])
	default:
		fatal("unknown multipart subcommand: " + args[0])
	}
}

func multipartUpload(args []string) {
	pos, opts := splitArgs(args)
	if len(pos) < 3 {
		fatal("multipart upload requires: <bucket> <key> <file>")
	}
	bucket, key, filePath := pos[0], pos[1], pos[2]

	partSize := int64(multipart.DefaultPartSize)
	if v := opts["part-size"]; v != "" {
		mb, err := strconv.Atoi(v)
		if err != nil || mb <= 0 {
			fatal("--part-size must be a positive number of MB")
		}
		partSize = int64(mb) << 20
	}
	var initOpts []multipart.InitOption
	if v := opts["content-type"]; v != "" {
		initOpts = append(initOpts, multipart.WithContentType(v))
	}

	f, err := os.Open(filePath)
	if err != nil {
		fatal(err.Error())
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		fatal(err.Error())
	}

	ctx := context.Background()
	c := newClient(ctx)
	defer c.Close()

	etag, err := c.Multipart.Upload(ctx, bucket, key, f, partSize, initOpts...)
	if err != nil {
		fatal(err.Error())
	}
	fmt.Printf("Uploaded '%s' to %s/%s (%s, etag %s)\n", filePath, bucket, key, formatSize(stat.Size()), etag)
}

func multipartList(args []string) {
	if len(args) < 1 {
		fatal("multipart list requires a bucket name")
	}
	ctx := context.Background()
	c := newClient(ctx)
	defer c.Close()

	uploads, err := c.Multipart.Uploads(ctx, args[0])
	if err != nil {
		fatal(err.Error())
	}
	if len(uploads) == 0 {
		fmt.Println("No uploads in progress.")
		return
	}
	rows := make([][]string, 0, len(uploads))
	for _, u := range uploads {
		rows = append(rows, []string{u.Key, u.UploadID, formatTime(u.Initiated)})
	}
	printTable([]string{"KEY", "UPLOAD ID", "INITIATED"}, rows)
}

func resumeSession(ctx context.Context, c *multipart.Coordinator, args []string, usage string) *multipart.Session {
	if len(args) < 3 {
		fatal(usage)
	}
	s, err := c.Resume(ctx, args[0], args[1], args[2])
	if err != nil {
		fatal(err.Error())
	}
	return s
}

func multipartParts(args []string) {
	ctx := context.Background()
	c := newClient(ctx)
	defer c.Close()

	s := resumeSession(ctx, c.Multipart, args, "multipart parts requires: <bucket> <key> <upload-id>")
	parts := s.Parts()
	if len(parts) == 0 {
		fmt.Println("No parts uploaded.")
		return
	}
	rows := make([][]string, 0, len(parts))
	for _, p := range parts {
		rows = append(rows, []string{strconv.Itoa(int(p.Number)), formatSize(p.Size), p.ETag})
	}
	printTable([]string{"PART", "SIZE", "ETAG"}, rows)
	fmt.Printf("\n%d part(s), %s\n", len(parts), formatSize(s.Size()))
}

func multipartAbort(args []string) {
	ctx := context.Background()
	c := newClient(ctx)
	defer c.Close()

	s := resumeSession(ctx, c.Multipart, args, "multipart abort requires: <bucket> <key> <upload-id>")
	if err := c.Multipart.Abort(ctx, s); err != nil {
		fatal(err.Error())
	}
	fmt.Printf("Aborted upload %s\n", s.UploadID)
}
