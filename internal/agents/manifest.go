package agents

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
	"gopkg.in/yaml.v3"
)

const manifestSuffix = ".agent.yaml"

// ManifestSource читает описания агентов из *.agent.yaml в каталоге.
// Манифест может ссылаться на встроенный kind или на удаленного gRPC агента (kind: remote, endpoint).
type ManifestSource struct {
	dir string
}

func NewManifestSource(dir string) *ManifestSource {
	return &ManifestSource{dir: dir}
}

func (s *ManifestSource) Name() string { return "manifest:" + s.dir }

func (s *ManifestSource) Dir() string { return s.dir }

// Discover. Отсутствующий или нечитаемый каталог, ошибка, а не пустой список.
func (s *ManifestSource) Discover(ctx context.Context) ([]domain.AgentDescriptor, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read manifest dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), manifestSuffix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]domain.AgentDescriptor, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		desc, err := readManifest(filepath.Join(s.dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, desc)
	}
	return out, nil
}

func readManifest(path string) (domain.AgentDescriptor, error) {
	var desc domain.AgentDescriptor

	data, err := os.ReadFile(path)
	if err != nil {
		return desc, fmt.Errorf("read manifest %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return desc, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	// id по умолчанию, имя файла без суффикса
	if desc.ID == "" {
		desc.ID = strings.TrimSuffix(filepath.Base(path), manifestSuffix)
	}
	if desc.Kind == "" {
		desc.Kind = string(KindAssistant)
	}
	if Kind(desc.Kind) == KindRemote && desc.Endpoint == "" {
		return desc, fmt.Errorf("manifest %s: remote agent %q without endpoint", path, desc.ID)
	}
	return desc, nil
}
