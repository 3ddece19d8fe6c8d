package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/eniz1806/VaultOSS/internal/batch"
	"github.com/eniz1806/VaultOSS/internal/storage"
)

func runObject(args []string) {
	if len(args) == 0 {
		fmt.Println(`Usage: vaultoss-cli object <subcommand>

Subcommands:
  ls <bucket> [--prefix=<prefix>]                     List objects
  put <bucket> <key> <file> [options]                 Upload object
      --content-type=<type> --ttl=<dur> --sse=AES256 --acl=<canned> --meta=k=v,...
  get <bucket> <key> <file>                           Download object
  head <bucket> <key>                                 Show object metadata
  rm <bucket> <key>                                   Delete object
  cp <src-bucket/key> <dst-bucket/key>                Copy object
  tag <bucket> <key> [k=v,...]                        Show or replace tags
  acl <bucket> <key> [<canned>]                       Show or set the ACL
  url <bucket> <key>                                  Print the unsigned public URL
  bulk-rm <bucket> [--prefix=<prefix>]                Delete every object under a prefix
  bulk-cp <src-bucket> <dst-bucket> [--prefix=<prefix>] [--workers=<n>]  Copy every object under a prefix`)
		os.Exit(1)
	}

	switch args[0] {
	case "ls", "list":
		objectList(args[1:])
	case "put", "upload":
		objectPut(args[1:])
	case "get", "download":
		objectGet(args[1:])
	case "head", "stat":
		objectHead(args[1:])
	case "rm", "delete":
		objectDelete(args[1:])
	case "cp", "copy":
		objectCopy(args[1:])
	case "tag", "tags":
		objectTags(args[1:])
	case "acl":
		objectACL(args[1:])
	case "url":
		objectURL(args[1:])
	case "bulk-rm":
		objectBulk(batch.JobBulkDelete, args[1:])
	case "bulk-cp":
		objectBulk(batch.JobBulkCopy, args[1:])
	default:
		fatal("unknown object subcommand: " + args[0])
	}
}

func objectList(args []string) {
	pos, opts := splitArgs(args)
	if len(pos) < 1 {
		fatal("object ls requires a bucket name")
	}
	ctx := context.Background()
	c := newClient(ctx)
	defer c.Close()

	objects, err := c.Store.List(ctx, pos[0], opts["prefix"])
	if err != nil {
		fatal(err.Error())
	}
	if len(objects) == 0 {
		fmt.Println("No objects found.")
		return
	}

	headers := []string{"KEY", "SIZE", "LAST MODIFIED", "ETAG"}
	rows := make([][]string, 0, len(objects))
	for _, obj := range objects {
		rows = append(rows, []string{
			obj.Key,
			formatSize(obj.Size),
			formatTime(obj.LastModified),
			obj.ETag,
		})
	}
	printTable(headers, rows)
	fmt.Printf("\n%d object(s)\n", len(objects))
}

func putOptions(opts map[string]string) []storage.PutOption {
	var out []storage.PutOption
	if v := opts["content-type"]; v != "" {
		out = append(out, storage.WithContentType(v))
	}
	if v, ok := opts["ttl"]; ok {
		ttl, err := parseTTL(v)
		if err != nil {
			fatal(err.Error())
		}
		out = append(out, storage.WithTTL(ttl))
	}
	if v := opts["sse"]; v != "" {
		out = append(out, storage.WithEncryption(v))
	}
	if v := opts["acl"]; v != "" {
		out = append(out, storage.WithACL(v))
	}
	if v := opts["meta"]; v != "" {
		md, err := parsePairs(v)
		if err != nil {
			fatal(err.Error())
		}
		out = append(out, storage.WithMetadata(md))
	}
	return out
}

func objectPut(args []string) {
	pos, opts := splitArgs(args)
	if len(pos) < 3 {
		fatal("object put requires: <bucket> <key> <file>")
	}
	bucket, key, filePath := pos[0], pos[1], pos[2]

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

	putOpts := append(putOptions(opts), storage.WithSize(stat.Size()))
	info, err := c.Store.Put(ctx, bucket, key, f, putOpts...)
	if err != nil {
		fatal(err.Error())
	}
	fmt.Printf("Uploaded '%s' to %s/%s (%s, etag %s)\n", filePath, bucket, key, formatSize(stat.Size()), info.ETag)
}

func objectGet(args []string) {
	if len(args) < 3 {
		fatal("object get requires: <bucket> <key> <file>")
	}
	bucket, key, filePath := args[0], args[1], args[2]

	ctx := context.Background()
	c := newClient(ctx)
	defer c.Close()

	body, info, err := c.Store.Get(ctx, bucket, key)
	if err != nil {
		fatal(err.Error())
	}
	defer body.Close()

	out, err := os.Create(filePath)
	if err != nil {
		fatal(err.Error())
	}
	defer out.Close()

	n, err := io.Copy(&progressWriter{w: out, total: info.Size}, body)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		fatal(err.Error())
	}

	fmt.Printf("Downloaded %s/%s to '%s' (%s)\n", bucket, key, filePath, formatSize(n))
}

func objectHead(args []string) {
	if len(args) < 2 {
		fatal("object head requires: <bucket> <key>")
	}
	ctx := context.Background()
	c := newClient(ctx)
	defer c.Close()

	info, err := c.Store.Head(ctx, args[0], args[1])
	if err != nil {
		fatal(err.Error())
	}
	rows := [][]string{
		{"Key", info.Key},
		{"Size", formatSize(info.Size)},
		{"ETag", info.ETag},
		{"Content-Type", info.ContentType},
		{"Last-Modified", formatTime(info.LastModified)},
		{"Expires", formatTime(info.Expires)},
	}
	keys := make([]string, 0, len(info.Metadata))
	for k := range info.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rows = append(rows, []string{"x-amz-meta-" + k, info.Metadata[k]})
	}
	printTable([]string{"FIELD", "VALUE"}, rows)
}

func objectDelete(args []string) {
	if len(args) < 2 {
		fatal("object rm requires: <bucket> <key>")
	}
	bucket, key := args[0], args[1]

	ctx := context.Background()
	c := newClient(ctx)
	defer c.Close()

	if err := c.Store.Delete(ctx, bucket, key); err != nil {
		fatal(err.Error())
	}
	fmt.Printf("Deleted %s/%s\n", bucket, key)
}

func objectCopy(args []string) {
	if len(args) < 2 {
		fatal("object cp requires: <src-bucket/key> <dst-bucket/key>")
	}
	srcBucket, srcKey, ok1 := splitPath(args[0])
	dstBucket, dstKey, ok2 := splitPath(args[1])
	if !ok1 || !ok2 {
		fatal("source and destination must be in format: bucket/key")
	}

	ctx := context.Background()
	c := newClient(ctx)
	defer c.Close()

	if _, err := c.Store.Copy(ctx, srcBucket, srcKey, dstBucket, dstKey); err != nil {
		fatal(err.Error())
	}
	fmt.Printf("Copied %s to %s\n", args[0], args[1])
}

func objectTags(args []string) {
	if len(args) < 2 {
		fatal("object tag requires: <bucket> <key> [k=v,...]")
	}
	bucket, key := args[0], args[1]

	ctx := context.Background()
	c := newClient(ctx)
	defer c.Close()

	if len(args) > 2 {
		tags, err := parsePairs(args[2])
		if err != nil {
			fatal(err.Error())
		}
		if err := c.Store.SetTags(ctx, bucket, key, tags); err != nil {
			fatal(err.Error())
		}
	}

	tags, err := c.Store.Tags(ctx, bucket, key)
	if err != nil {
		fatal(err.Error())
	}
	if len(tags) == 0 {
		fmt.Println("No tags.")
		return
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, tags[k]})
	}
	printTable([]string{"TAG", "VALUE"}, rows)
}

func objectACL(args []string) {
	if len(args) < 2 {
		fatal("object acl requires: <bucket> <key> [<canned>]")
	}
	bucket, key := args[0], args[1]

	ctx := context.Background()
	c := newClient(ctx)
	defer c.Close()

	if len(args) > 2 {
		if err := c.Store.SetACL(ctx, bucket, key, args[2]); err != nil {
			fatal(err.Error())
		}
	}

	acl, err := c.Store.ACL(ctx, bucket, key)
	if err != nil {
		fatal(err.Error())
	}
	rows := make([][]string, 0, len(acl.Grants))
	for _, g := range acl.Grants {
		rows = append(rows, []string{g.Grantee, g.Permission})
	}
	fmt.Printf("Owner: %s  Public read: %v\n", acl.Owner, acl.PublicRead())
	printTable([]string{"GRANTEE", "PERMISSION"}, rows)
}

func objectURL(args []string) {
	if len(args) < 2 {
		fatal("object url requires: <bucket> <key>")
	}
	ctx := context.Background()
	c := newClient(ctx)
	defer c.Close()

	fmt.Println(c.Presign.PublicURL(strings.TrimSpace(args[0]), args[1]))
}

func objectBulk(typ batch.JobType, args []string) {
	pos, opts := splitArgs(args)
	job := &batch.Job{Type: typ, Prefix: opts["prefix"]}
	switch {
	case typ == batch.JobBulkCopy && len(pos) >= 2:
		job.Container, job.DstContainer = pos[0], pos[1]
	case typ == batch.JobBulkDelete && len(pos) >= 1:
		job.Container = pos[0]
	default:
		fatal(fmt.Sprintf("object %s: missing bucket name", typ))
	}
	workers, _ := strconv.Atoi(opts["workers"])

	ctx := context.Background()
	c := newClient(ctx)
	defer c.Close()

	err := batch.NewProcessor(c.Store, workers).Run(ctx, job)
	fmt.Printf("%s: %d of %d object(s) done, %d failed\n", typ, job.Progress, job.Total, job.Failed)
	if err != nil {
		fatal(err.Error())
	}
}
