package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/eniz1806/VaultOSS/internal/config"
	"github.com/eniz1806/VaultOSS/internal/oss"
)

var version = "dev"

var (
	configPath string
	endpoint   string
	accessKey  string
	secretKey  string
	region     string
	baseBucket string
	domain     string
	pathStyle  = true
)

func init() {
	endpoint = envOrDefault("VAULTOSS_ENDPOINT", "http://localhost:9000")
	accessKey = envOrDefault("VAULTOSS_ACCESS_KEY", "")
	secretKey = envOrDefault("VAULTOSS_SECRET_KEY", "")
	region = envOrDefault("VAULTOSS_REGION", "us-east-1")
	baseBucket = envOrDefault("VAULTOSS_BUCKET_NAME", "")
	domain = envOrDefault("VAULTOSS_CUSTOM_DOMAIN", "")
	if v, err := strconv.ParseBool(os.Getenv("VAULTOSS_PATH_STYLE")); err == nil {
		pathStyle = v
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	args, err := parseGlobal(os.Args[1:])
	if err != nil {
		fatal(err.Error())
	}
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "bucket":
		runBucket(cmdArgs)
	case "object":
		runObject(cmdArgs)
	case "multipart":
		runMultipart(cmdArgs)
	case "lifecycle":
		runLifecycle(cmdArgs)
	case "presign":
		runPresign(cmdArgs)
	case "version":
		fmt.Printf("vaultoss-cli %s\n", version)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

// parseGlobal consumes the flags that precede the subcommand.
func parseGlobal(args []string) ([]string, error) {
	value := func(name string) (string, error) {
		if len(args) < 2 {
			return "", fmt.Errorf("%s requires a value", name)
		}
		v := args[1]
		args = args[2:]
		return v, nil
	}

	for len(args) > 0 && len(args[0]) > 0 && args[0][0] == '-' {
		var err error
		switch args[0] {
		case "--config":
			configPath, err = value("--config")
		case "--endpoint":
			endpoint, err = value("--endpoint")
		case "--access-key":
			accessKey, err = value("--access-key")
		case "--secret-key":
			secretKey, err = value("--secret-key")
		case "--region":
			region, err = value("--region")
		case "--base-bucket":
			baseBucket, err = value("--base-bucket")
		case "--domain":
			domain, err = value("--domain")
		case "--virtual-host":
			pathStyle = false
			args = args[1:]
		case "--version", "-v":
			fmt.Printf("vaultoss-cli %s\n", version)
			os.Exit(0)
		case "--help", "-h":
			printUsage()
			os.Exit(0)
		default:
			return nil, fmt.Errorf("unknown flag: %s", args[0])
		}
		if err != nil {
			return nil, err
		}
	}
	return args, nil
}

func printUsage() {
	fmt.Println(`Usage: vaultoss-cli [flags] <command> <subcommand> [args]

Global Flags:
  --config <file>        Load settings from a YAML config file (flags below are ignored)
  --endpoint <url>       S3 endpoint (default: $VAULTOSS_ENDPOINT or http://localhost:9000)
  --access-key <key>     Access key (default: $VAULTOSS_ACCESS_KEY)
  --secret-key <key>     Secret key (default: $VAULTOSS_SECRET_KEY)
  --region <region>      Region (default: $VAULTOSS_REGION or us-east-1)
  --base-bucket <name>   Map containers to folders of this bucket (default: $VAULTOSS_BUCKET_NAME)
  --domain <host>        Custom domain for public URLs (default: $VAULTOSS_CUSTOM_DOMAIN)
  --virtual-host         Use virtual-hosted style addressing
  --version, -v          Show version

Commands:
  bucket                 Container operations (list, create, delete, info, purge, versioning)
  object                 Object operations (ls, put, get, head, rm, cp, tag, acl, url)
  multipart              Multipart uploads (upload, list, parts, abort)
  lifecycle              Expiration rules (list, set, rm, reconcile)
  presign                Presigned URLs (get, put, head, delete, part)
  version                Show version
  help                   Show this help`)
}

func fatal(msg string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	os.Exit(1)
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	cfg := &config.Config{
		Endpoint:        endpoint,
		Region:          region,
		AccessKey:       accessKey,
		SecretKey:       secretKey,
		BucketName:      baseBucket,
		CustomDomain:    domain,
		PathStyleAccess: pathStyle,
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w. Set VAULTOSS_* or use --endpoint/--access-key/--secret-key", err)
	}
	return cfg, nil
}

// newClient builds a client or exits. Notification backends from a config
// file are dropped so CLI runs never publish events.
func newClient(ctx context.Context) *oss.Client {
	cfg, err := loadConfig()
	if err != nil {
		fatal(err.Error())
	}
	cfg.Notifications = config.NotificationsConfig{}
	c, err := oss.New(ctx, cfg)
	if err != nil {
		fatal(err.Error())
	}
	return c
}
