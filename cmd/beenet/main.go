// Package main implements the Beenet CLI as specified in §2.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/WebFirstLanguage/beenet/internal/dht"
	"github.com/WebFirstLanguage/beenet/pkg/agent"
	"github.com/WebFirstLanguage/beenet/pkg/content"
	"github.com/WebFirstLanguage/beenet/pkg/control"
	"github.com/WebFirstLanguage/beenet/pkg/identity"
)

// Build-time variables set by ldflags
var (
	version    = "dev"
	buildTime  = "unknown"
	commitHash = "unknown"
)

// controlAddr is the local control API address a running node listens on and
// a second CLI invocation (status/peers/name) dials into.
const controlAddr = "127.0.0.1:27777"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	var err error
	switch command {
	case "version", "--version", "-v":
		printVersion()
	case "help", "--help", "-h":
		printUsage()
	case "start":
		err = startCommand(os.Args[2:])
	case "create":
		err = createCommand(os.Args[2:])
	case "join":
		err = startCommand(os.Args[2:])
	case "status":
		err = statusCommand()
	case "peers":
		err = peersCommand()
	case "name":
		err = nameCommand(os.Args[2:])
	case "put":
		err = putCommand(os.Args[2:])
	case "get":
		err = getCommand(os.Args[2:])
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// flagValue scans args for "--name value" and returns value, defaulting to def.
func flagValue(args []string, name, def string) string {
	for i, arg := range args {
		if arg == name && i+1 < len(args) {
			return args[i+1]
		}
	}
	return def
}

// getIdentityPath returns the path to the identity file
func getIdentityPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "beenet-identity.json"
	}
	return filepath.Join(homeDir, ".beenet", "identity.json")
}

// loadOrCreateIdentity loads the existing node identity or creates a new one
func loadOrCreateIdentity() (*identity.Identity, error) {
	identityPath := getIdentityPath()

	if _, err := os.Stat(identityPath); err == nil {
		return identity.LoadFromFile(identityPath)
	}

	fmt.Println("No existing identity found, generating new identity...")
	id, err := identity.GenerateIdentity()
	if err != nil {
		return nil, fmt.Errorf("failed to generate identity: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(identityPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create identity directory: %w", err)
	}
	if err := id.SaveToFile(identityPath); err != nil {
		return nil, fmt.Errorf("failed to save identity: %w", err)
	}

	fmt.Printf("New identity created and saved to %s\n", identityPath)
	return id, nil
}

// bootstrapAgent loads this node's identity, joins swarmID, and brings up DHT,
// SWIM, gossip, and the NDN/StreamTransport PeerDirectory (§12.6) via
// Agent.Start. Seed addresses are handed to the DHT bootstrap so the node has
// somewhere to start a Kademlia lookup from. It also starts the control API
// listener that status/peers/name dial into from a second invocation.
func bootstrapAgent(ctx context.Context, swarmID string, seeds []string) (*agent.Agent, error) {
	if swarmID == "" {
		return nil, fmt.Errorf("--swarm is required")
	}

	id, err := loadOrCreateIdentity()
	if err != nil {
		return nil, err
	}

	a := agent.New(id)
	if err := a.SetSwarmID(swarmID); err != nil {
		return nil, fmt.Errorf("failed to set swarm id: %w", err)
	}
	if a.Nickname() == "" {
		if err := a.SetNickname("bee"); err != nil {
			return nil, fmt.Errorf("failed to set default nickname: %w", err)
		}
	}

	fmt.Printf("BID: %s\n", a.BID())
	fmt.Printf("Handle: %s\n", a.Handle(a.Nickname()))
	fmt.Printf("Swarm: %s\n", swarmID)

	if err := a.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start agent: %w", err)
	}

	bootstrap := a.GetBootstrap()
	if bootstrap != nil {
		for i, seed := range seeds {
			node := &dht.SeedNode{BID: fmt.Sprintf("seed-%d", i), Addrs: []string{seed}}
			if err := bootstrap.AddSeedNode(node); err != nil {
				fmt.Printf("Warning: failed to add seed %s: %v\n", seed, err)
			}
		}
	}

	// PeerDirectory resolves DeviceIds to dialable tunnels as chunk-transfer
	// and stream traffic needs them; nothing to do here but confirm it came
	// up, since InitializeSWIMAndGossip already built it and handed it to the
	// message router via SetPeerDirectory.
	if a.GetPeerDirectory() == nil {
		return nil, fmt.Errorf("peer directory did not initialize")
	}

	listener, err := net.Listen("tcp", controlAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to start control API: %w", err)
	}
	server := control.NewServer(a)
	go func() {
		if err := server.Serve(ctx, listener); err != nil {
			fmt.Printf("Control API stopped: %v\n", err)
		}
	}()
	fmt.Printf("Control API listening on %s\n", listener.Addr())

	return a, nil
}

// startCommand implements the start subcommand (join mode by default).
func startCommand(args []string) error {
	swarmID := flagValue(args, "--swarm", "")
	seed := flagValue(args, "--seed", "")

	fmt.Println("Starting Beenet node...")

	var seeds []string
	if seed != "" {
		seeds = append(seeds, seed)
	}

	ctx := context.Background()
	a, err := bootstrapAgent(ctx, swarmID, seeds)
	if err != nil {
		return err
	}

	fmt.Printf("Node %s running. Press Ctrl+C to stop.\n", a.BID())
	select {} // Block forever; no signal handler is installed, so Stop(ctx) is never called.
}

// createCommand implements the create subcommand (explicit swarm creation).
func createCommand(args []string) error {
	name := flagValue(args, "--name", "")
	if name == "" {
		return fmt.Errorf("--name is required")
	}
	listen := flagValue(args, "--listen", "/ip4/0.0.0.0/udp/27487/quic")

	fmt.Printf("Creating new Beenet swarm %q...\n", name)
	fmt.Printf("Listening on %s\n", listen)

	ctx := context.Background()
	_, err := bootstrapAgent(ctx, name, nil)
	if err != nil {
		return err
	}

	fmt.Println("Swarm created. Press Ctrl+C to stop.")
	select {}
}

// sendControlRequest dials the running node's control API and round-trips a
// single request, the way every second-invocation subcommand (status, peers,
// name) needs to.
func sendControlRequest(method string, params map[string]interface{}) (*control.Response, error) {
	conn, err := net.Dial("tcp", controlAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to agent (is it running?): %w", err)
	}
	defer conn.Close()

	request := control.Request{Method: method, ID: method, Params: params}
	if err := json.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	var response control.Response
	if err := json.NewDecoder(conn).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("%s", response.Error)
	}
	return &response, nil
}

// statusCommand reports the running node's identity and lifecycle state.
func statusCommand() error {
	response, err := sendControlRequest("GetInfo", nil)
	if err != nil {
		return err
	}
	result, ok := response.Result.(map[string]interface{})
	if !ok {
		return fmt.Errorf("unexpected response format")
	}

	fmt.Println("Agent is running")
	fmt.Printf("BID: %v\n", result["bid"])
	fmt.Printf("State: %v\n", result["state"])
	if nickname := result["nickname"]; nickname != "" {
		fmt.Printf("Nickname: %v\n", nickname)
		fmt.Printf("Handle: %v\n", result["handle"])
	}
	return nil
}

// peersCommand lists the DHT peers the running node currently knows about.
func peersCommand() error {
	response, err := sendControlRequest("peers", nil)
	if err != nil {
		return err
	}
	result, ok := response.Result.(map[string]interface{})
	if !ok {
		return fmt.Errorf("unexpected response format")
	}
	peers, _ := result["peers"].([]interface{})
	if len(peers) == 0 {
		fmt.Println("No peers known")
		return nil
	}
	for _, p := range peers {
		peer, ok := p.(map[string]interface{})
		if !ok {
			continue
		}
		fmt.Printf("%v  %v  last_seen=%v\n", peer["bid"], peer["addrs"], peer["last_seen"])
	}
	return nil
}

// nameCommand dispatches the honeytag claim/resolve/refresh/release/transfer
// subcommands over the control API (§12.6). Delegate/revoke are not offered:
// pkg/honeytag has no delegation chain implementation to back them with.
func nameCommand(args []string) error {
	usage := func() error {
		fmt.Println("Usage:")
		fmt.Println("  beenet name claim <name>                 - Claim a new name")
		fmt.Println("  beenet name resolve <name>               - Resolve a name or BID")
		fmt.Println("  beenet name refresh <name>               - Refresh lease on an owned name")
		fmt.Println("  beenet name release <name>                - Release ownership of a name")
		fmt.Println("  beenet name transfer <name> <new_owner>  - Transfer name to another owner")
		return nil
	}
	if len(args) < 2 {
		return usage()
	}
	subcommand, name := args[0], args[1]

	switch subcommand {
	case "claim":
		if _, err := sendControlRequest("honeytag.claim", map[string]interface{}{"name": name}); err != nil {
			return fmt.Errorf("claim failed: %w", err)
		}
		fmt.Printf("Claimed name %q\n", name)
		return nil
	case "resolve":
		return resolveCommand(name)
	case "refresh":
		if _, err := sendControlRequest("honeytag.refresh", map[string]interface{}{"name": name}); err != nil {
			return fmt.Errorf("refresh failed: %w", err)
		}
		fmt.Printf("Refreshed name %q\n", name)
		return nil
	case "release":
		if _, err := sendControlRequest("honeytag.release", map[string]interface{}{"name": name}); err != nil {
			return fmt.Errorf("release failed: %w", err)
		}
		fmt.Printf("Released name %q\n", name)
		return nil
	case "transfer":
		if len(args) < 3 {
			return fmt.Errorf("usage: beenet name transfer <name> <new_owner>")
		}
		newOwner := args[2]
		if _, err := sendControlRequest("honeytag.transfer", map[string]interface{}{"name": name, "new_owner": newOwner}); err != nil {
			return fmt.Errorf("transfer failed: %w", err)
		}
		fmt.Printf("Transferred name %q to %s\n", name, newOwner)
		return nil
	default:
		return usage()
	}
}

// resolveCommand prints the resolution of a name, handle, or BID (§12.5).
func resolveCommand(query string) error {
	response, err := sendControlRequest("honeytag.resolve", map[string]interface{}{"query": query})
	if err != nil {
		return fmt.Errorf("resolution failed: %w", err)
	}
	result, ok := response.Result.(map[string]interface{})
	if !ok {
		return fmt.Errorf("unexpected response format")
	}

	fmt.Printf("Query: %s\n", query)
	fmt.Printf("Kind: %s\n", result["kind"])
	fmt.Printf("Owner: %s\n", result["owner"])
	fmt.Printf("Device: %s\n", result["device"])
	if handle, ok := result["handle"]; ok && handle != "" {
		fmt.Printf("Handle: %s\n", handle)
	}
	if addrs, ok := result["addrs"].([]interface{}); ok && len(addrs) > 0 {
		fmt.Println("Addresses:")
		for _, addr := range addrs {
			fmt.Printf("  %s\n", addr)
		}
	} else {
		fmt.Println("Addresses: (offline)")
	}
	return nil
}

// putCommand chunks a local file, builds its manifest, and prints the
// resulting content id (§10's content-addressing scheme, `pkg/content`).
// Network publishing happens once a node announces the manifest CID as a
// provider in the DHT, which is not wired up yet.
func putCommand(args []string) error {
	if len(args) == 0 {
		fmt.Println("Usage: beenet put <file> [--chunk-size <bytes>]")
		return nil
	}
	filePath := args[0]
	chunkSizeStr := flagValue(args, "--chunk-size", "1048576")
	var chunkSize int
	if _, err := fmt.Sscanf(chunkSizeStr, "%d", &chunkSize); err != nil || chunkSize <= 0 {
		return fmt.Errorf("invalid --chunk-size: %s", chunkSizeStr)
	}

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", filePath)
	}

	chunks, err := content.ChunkFile(filePath, uint32(chunkSize))
	if err != nil {
		return fmt.Errorf("failed to chunk file: %w", err)
	}

	manifest, err := content.BuildManifest(chunks, filePath, uint32(chunkSize))
	if err != nil {
		return fmt.Errorf("failed to build manifest: %w", err)
	}

	manifestCID, err := content.ComputeManifestCID(manifest)
	if err != nil {
		return fmt.Errorf("failed to compute manifest CID: %w", err)
	}

	if err := content.VerifyManifest(manifest); err != nil {
		return fmt.Errorf("manifest verification failed: %w", err)
	}

	fmt.Printf("Manifest CID: %s\n", manifestCID.String)
	fmt.Printf("Content type: %s\n", manifest.ContentType)
	fmt.Printf("Chunks: %d\n", manifest.ChunkCount)
	fmt.Printf("Size: %d bytes\n", manifest.FileSize)
	return nil
}

// getCommand validates a content id and reports what retrieving it would
// need. Fetching chunks over NDN and reconstructing the file is not wired
// up yet: pkg/content's fetcher expects a NetworkInterface this CLI doesn't
// construct, and pkg/ndn's Channel/Fetch are the piece that would drive it.
func getCommand(args []string) error {
	if len(args) == 0 {
		fmt.Println("Usage: beenet get <cid> [output-file]")
		return nil
	}
	cidStr := args[0]

	cid, err := content.ParseCID(cidStr)
	if err != nil {
		return fmt.Errorf("invalid CID: %w", err)
	}

	outputPath := "retrieved_content"
	if len(args) > 1 {
		outputPath = args[1]
	}

	fmt.Printf("CID: %s\n", cid.String)
	fmt.Printf("Would fetch via ndn.Channel.Fetch and reconstruct to %s\n", outputPath)
	fmt.Println("Network fetching is not wired up yet; nothing was written.")
	return nil
}

func printVersion() {
	fmt.Printf("Beenet %s\n", version)
	fmt.Printf("Built: %s\n", buildTime)
	fmt.Printf("Commit: %s\n", commitHash)
}

func printUsage() {
	fmt.Printf(`Beenet v%s - A P2P mesh network

Usage:
  beenet <command> [options]

Commands:
  start     Start a Beenet node (join mode - default)
  create    Create a new Beenet swarm (explicit)
  join      Same as start (no invite handling)
  status    Report a running node's identity and state
  peers     List peers a running node knows about
  name      Name operations (claim, resolve, refresh, release, transfer)
  put       Chunk a local file and compute its content id
  get       Resolve a content id (network fetch not wired up yet)
  version   Show version information
  help      Show this help message

Examples:
  # Join mode (default)
  beenet start --swarm <swarm-id> --seed <multiaddr>

  # Create mode (explicit)
  beenet create --name teamnet --listen /ip4/0.0.0.0/udp/27487/quic

  # Name operations
  beenet name claim brad
  beenet name resolve brad
  beenet name transfer brad bee:key:z6Mk...

For more information, visit: https://github.com/WebFirstLanguage/beenet

`, version)
}
