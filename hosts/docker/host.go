// Package docker deploys resources as Docker containers. A template's code
// binary is an image reference, the deploy call becomes a labeled container,
// and outcomes are recovered by inspecting those labels, so receipts survive
// a factory restart.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/subforge-io/subforge/internal/host"
	"github.com/subforge-io/subforge/internal/logging"
)

const (
	labelCallID  = "io.subforge.call-id"
	labelTarget  = "io.subforge.target"
	labelReturns = "io.subforge.returns"
	labelParam   = "io.subforge.param"
)

// Host deploys resources through the Docker Engine API.
type Host struct {
	mu        sync.Mutex
	client    *client.Client
	delivered map[string]bool
}

// New returns a Docker host. The client is created lazily from the
// environment on first use.
func New() *Host {
	return &Host{delivered: make(map[string]bool)}
}

func (h *Host) ensureClient() error {
	if h.client != nil {
		return nil
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("failed to create Docker client: %w", err)
	}
	h.client = cli
	return nil
}

// Height implements host.Host. Docker has no block height, so wall-clock
// seconds serve as the monotonic clock the orphan sweep measures against.
func (h *Host) Height(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return uint64(time.Now().Unix()), nil
}

// Deploy implements host.Host. The call's code binary is interpreted as an
// image reference; init args become the container environment.
func (h *Host) Deploy(ctx context.Context, call host.DeployCall) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.ensureClient(); err != nil {
		return err
	}

	ref := strings.TrimSpace(string(call.Code))
	if ref == "" {
		return fmt.Errorf("deploy call %s carries no image reference", call.ID)
	}

	reader, err := h.client.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	io.Copy(os.Stdout, reader)
	reader.Close()

	env, err := initEnv(call.InitMethod, call.InitArgs)
	if err != nil {
		return fmt.Errorf("failed to build environment for call %s: %w", call.ID, err)
	}

	cfg := &container.Config{
		Image: ref,
		Env:   env,
		Labels: map[string]string{
			labelCallID:  call.ID,
			labelTarget:  call.Target,
			labelReturns: string(call.Returns),
			labelParam:   string(call.Callback.Param),
		},
	}
	hostCfg := &container.HostConfig{}

	// An init arg named "port" publishes the resource's service port on the
	// same host port.
	if port, ok := servicePort(call.InitArgs); ok {
		p := nat.Port(fmt.Sprintf("%d/tcp", port))
		cfg.ExposedPorts = nat.PortSet{p: struct{}{}}
		hostCfg.PortBindings = nat.PortMap{
			p: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: fmt.Sprintf("%d", port)}},
		}
	}

	resp, err := h.client.ContainerCreate(ctx,
		cfg,
		hostCfg,
		&network.NetworkingConfig{},
		&v1.Platform{},
		containerName(call.Target),
	)
	if err != nil {
		return fmt.Errorf("failed to create container for %s: %w", call.Target, err)
	}

	if err := h.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container for %s: %w", call.Target, err)
	}

	logging.Debug("started container", "call", call.ID, "container", resp.ID)
	return nil
}

// CollectReceipts implements host.Host. Every container carrying a call-id
// label is inspected: a running container is a successful deployment, an
// exited one a failed one. Created containers are still settling and are
// skipped until a later collection. Receipts whose param label does not
// match their returns label are dropped, the same silent non-delivery a
// mis-declared callback gets.
func (h *Host) CollectReceipts(ctx context.Context) ([]host.Receipt, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.ensureClient(); err != nil {
		return nil, err
	}

	list, err := h.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", labelCallID)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	height, _ := h.Height(ctx)

	var out []host.Receipt
	for _, c := range list {
		callID := c.Labels[labelCallID]
		if callID == "" || h.delivered[callID] {
			continue
		}

		inspect, err := h.client.ContainerInspect(ctx, c.ID)
		if err != nil {
			logging.Warn("failed to inspect container", "container", c.ID, "error", err)
			continue
		}
		if inspect.State == nil || inspect.State.Status == "created" {
			continue
		}

		h.delivered[callID] = true

		returns := host.TypeRef(c.Labels[labelReturns])
		param := host.TypeRef(c.Labels[labelParam])
		if !returns.Matches(param) {
			logging.Warn("dropping receipt: callback parameter type does not match declared return type",
				"call", callID, "container", c.ID)
			continue
		}

		if inspect.State.Running {
			result, err := json.Marshal(host.DeployResult{
				Address: c.ID,
				Height:  height,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to marshal deploy result: %w", err)
			}
			out = append(out, host.Receipt{
				CallID:  callID,
				Outcome: host.OutcomeSuccess,
				Result:  result,
				Height:  height,
			})
			continue
		}

		reason := inspect.State.Error
		if reason == "" {
			reason = fmt.Sprintf("container exited with code %d", inspect.State.ExitCode)
		}
		out = append(out, host.Receipt{
			CallID:        callID,
			Outcome:       host.OutcomeFailure,
			FailureReason: reason,
			Height:        height,
		})
	}
	return out, nil
}

// initEnv flattens the init call into container environment variables. Args
// must be a flat JSON object; nested values are rejected.
func initEnv(method string, args []byte) ([]string, error) {
	env := []string{fmt.Sprintf("SUBFORGE_INIT_METHOD=%s", method)}
	if len(args) == 0 {
		return env, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(args, &fields); err != nil {
		return nil, fmt.Errorf("init args are not a JSON object: %w", err)
	}
	for k, v := range fields {
		switch val := v.(type) {
		case string:
			env = append(env, fmt.Sprintf("SUBFORGE_ARG_%s=%s", strings.ToUpper(k), val))
		case float64:
			env = append(env, fmt.Sprintf("SUBFORGE_ARG_%s=%v", strings.ToUpper(k), val))
		case bool:
			env = append(env, fmt.Sprintf("SUBFORGE_ARG_%s=%t", strings.ToUpper(k), val))
		default:
			return nil, fmt.Errorf("init arg %q has unsupported type", k)
		}
	}
	return env, nil
}

// servicePort extracts a numeric "port" init arg, if present.
func servicePort(args []byte) (int, bool) {
	if len(args) == 0 {
		return 0, false
	}
	var fields map[string]any
	if err := json.Unmarshal(args, &fields); err != nil {
		return 0, false
	}
	port, ok := fields["port"].(float64)
	if !ok || port <= 0 || port > 65535 {
		return 0, false
	}
	return int(port), true
}

// containerName derives a Docker-safe name from a resource address.
func containerName(target string) string {
	name := strings.NewReplacer(".", "-", "/", "-", ":", "-").Replace(target)
	return "subforge-" + name
}

var _ host.Host = (*Host)(nil)
