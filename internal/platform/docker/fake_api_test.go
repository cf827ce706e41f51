package docker

import (
	"bytes"
	"context"
	"io"
	"sync"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// fakeAPI records calls and plays back scripted responses. A created
// container "runs" until exit is sent on its channel.
type fakeAPI struct {
	mu sync.Mutex

	pulled    []string
	created   []*container.Config
	hostCfgs  []*container.HostConfig
	started   []string
	stopped   []string
	removed   []string
	copyPaths []string

	pullErr   error
	createErr error
	startErr  error
	searchErr error
	copyErr   error

	searchResults []registry.SearchResult
	stdout        []string
	stderr        []string
	output        []byte

	// stopStatus is the exit status reported after ContainerStop.
	stopStatus int64
	exit       chan container.WaitResponse
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{stopStatus: 143, exit: make(chan container.WaitResponse, 1)}
}

func (f *fakeAPI) Ping(context.Context) (types.Ping, error) {
	return types.Ping{APIVersion: "1.47"}, nil
}

func (f *fakeAPI) ImagePull(_ context.Context, ref string, _ image.PullOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulled = append(f.pulled, ref)
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	return io.NopCloser(bytes.NewBufferString(`{"status":"Downloaded"}`)), nil
}

func (f *fakeAPI) ImageSearch(_ context.Context, _ string, _ registry.SearchOptions) ([]registry.SearchResult, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchResults, nil
}

func (f *fakeAPI) ContainerCreate(
	_ context.Context,
	config *container.Config,
	hostConfig *container.HostConfig,
	_ *network.NetworkingConfig,
	_ *ocispec.Platform,
	_ string,
) (container.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return container.CreateResponse{}, f.createErr
	}
	f.created = append(f.created, config)
	f.hostCfgs = append(f.hostCfgs, hostConfig)
	return container.CreateResponse{ID: "c0ffee"}, nil
}

func (f *fakeAPI) ContainerStart(_ context.Context, id string, _ container.StartOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, id)
	return nil
}

func (f *fakeAPI) ContainerLogs(context.Context, string, container.LogsOptions) (io.ReadCloser, error) {
	var buf bytes.Buffer
	out := stdcopy.NewStdWriter(&buf, stdcopy.Stdout)
	errOut := stdcopy.NewStdWriter(&buf, stdcopy.Stderr)
	for _, line := range f.stdout {
		_, _ = out.Write([]byte(line))
	}
	for _, line := range f.stderr {
		_, _ = errOut.Write([]byte(line))
	}
	return io.NopCloser(&buf), nil
}

func (f *fakeAPI) ContainerWait(
	context.Context,
	string,
	container.WaitCondition,
) (<-chan container.WaitResponse, <-chan error) {
	return f.exit, make(chan error)
}

func (f *fakeAPI) ContainerStop(_ context.Context, id string, _ container.StopOptions) error {
	f.mu.Lock()
	f.stopped = append(f.stopped, id)
	f.mu.Unlock()
	select {
	case f.exit <- container.WaitResponse{StatusCode: f.stopStatus}:
	default:
	}
	return nil
}

func (f *fakeAPI) ContainerRemove(_ context.Context, id string, _ container.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeAPI) CopyFromContainer(_ context.Context, _ string, path string) (io.ReadCloser, container.PathStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copyPaths = append(f.copyPaths, path)
	if f.copyErr != nil {
		return nil, container.PathStat{}, f.copyErr
	}
	if f.output == nil {
		return nil, container.PathStat{}, cerrdefs.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(f.output)), container.PathStat{Name: "out"}, nil
}

func (f *fakeAPI) Close() error { return nil }

func (f *fakeAPI) stoppedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.stopped...)
}

func (f *fakeAPI) copiedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.copyPaths...)
}

func (f *fakeAPI) removedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.removed...)
}

var _ API = (*fakeAPI)(nil)
