package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"chatserver/internal/chatstore"

	flag "github.com/spf13/pflag"
)

// usageError mirrors the corpus's cli.go style: print a Usage line to
// stderr and exit with a fixed code. The positional afk_time/config_file
// contract and its exit codes (spec.md §6.2) are preserved exactly; the
// observability flags below (§6.5 of SPEC_FULL.md) are additive.
func usageError() {
	fmt.Fprintln(os.Stderr, "Usage: chatserver [afk_time] config_file")
	os.Exit(4)
}

func invalidConfigFile() {
	fmt.Fprintln(os.Stderr, "Error: Invalid configuration file.")
	os.Exit(5)
}

// ServerOptions is the vetted result of command-line parsing: the afk
// timeout, the path to the channel config file, and the SPEC_FULL.md
// monitoring knobs.
type ServerOptions struct {
	AFKTimeSeconds int
	ConfigFile     string

	MonitorAddr     string
	AuditDBPath     string
	MetricsInterval int // seconds
}

// ParseArgs parses os.Args per spec.md §6.2 plus the SPEC_FULL.md §6.5
// monitoring flags. It never returns on error — it prints the usage line
// and calls os.Exit(4), matching the source's invalid_command_line().
func ParseArgs(args []string) ServerOptions {
	fs := flag.NewFlagSet("chatserver", flag.ContinueOnError)
	fs.Usage = func() {}
	monitorAddr := fs.String("monitor-addr", ":8090", "address for the read-only monitoring API (empty disables)")
	auditDB := fs.String("audit-db", "chat-audit.db", "path to the admin-action audit database (empty disables persistence)")
	metricsInterval := fs.Int("metrics-interval", 10, "seconds between metrics log lines")

	if err := fs.Parse(args); err != nil {
		usageError()
	}
	positional := fs.Args()

	var afk = 100
	var configFile string
	switch len(positional) {
	case 1:
		configFile = positional[0]
	case 2:
		if !isDigits(positional[0]) {
			usageError()
		}
		n, err := strconv.Atoi(positional[0])
		if err != nil || n < 1 || n > 1000 {
			usageError()
		}
		afk = n
		configFile = positional[1]
	default:
		usageError()
	}
	if configFile == "" {
		usageError()
	}

	return ServerOptions{
		AFKTimeSeconds:  afk,
		ConfigFile:      configFile,
		MonitorAddr:     *monitorAddr,
		AuditDBPath:     *auditDB,
		MetricsInterval: *metricsInterval,
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var channelNameRE = func() func(string) bool {
	return func(s string) bool {
		if s == "" {
			return false
		}
		for _, r := range s {
			isAlnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
			if !isAlnum && r != '_' {
				return false
			}
		}
		return true
	}
}()

// LoadChannelTable reads and validates the config file format of spec.md
// §6.1: one "channel <name> <port> <capacity>" record per line, names
// matching [A-Za-z0-9_]+, ports 1024..65535, capacities 1..8, names and
// ports unique, at least one line. Any deviation exits 5. Semantics are
// grounded exactly on original_source/chatserver.py's check_file_format /
// check_valid_file (field count, per-character name validation, range
// checks, then uniqueness checks, in that order).
func LoadChannelTable(path string) []chatstore.ChannelDescriptor {
	f, err := os.Open(path)
	if err != nil {
		invalidConfigFile()
	}
	defer f.Close()

	var descs []chatstore.ChannelDescriptor
	seenNames := make(map[string]bool)
	seenPorts := make(map[int]bool)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 4 || fields[0] != "channel" {
			invalidConfigFile()
		}
		name := fields[1]
		if !channelNameRE(name) {
			invalidConfigFile()
		}
		if !isDigits(fields[2]) || !isDigits(fields[3]) {
			invalidConfigFile()
		}
		port, _ := strconv.Atoi(fields[2])
		capacity, _ := strconv.Atoi(fields[3])
		if port < 1024 || port > 65535 || capacity < 1 || capacity > 8 {
			invalidConfigFile()
		}
		if seenNames[name] || seenPorts[port] {
			invalidConfigFile()
		}
		seenNames[name] = true
		seenPorts[port] = true
		descs = append(descs, chatstore.ChannelDescriptor{Name: name, Port: port, Capacity: capacity})
	}
	if err := scanner.Err(); err != nil {
		invalidConfigFile()
	}
	if len(descs) == 0 {
		invalidConfigFile()
	}
	return descs
}
