// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"encoding/binary"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/devblok/korender/utility/kar"
	"github.com/gobuffalo/packr"
	"github.com/pkg/errors"
)

const (
	shaderSuffix  = ".spv"
	archiveSuffix = ".kar"

	// spirvMagic starts every SPIR-V module.
	spirvMagic = 0x07230203
)

// DefaultVertexShader is used by pipelines that have no vertex shader
// of their own.
const DefaultVertexShader = "mesh"

// ShaderType represents the type of shader thats loaded
type ShaderType int

// Identifies shader objects with their types
const (
	VertexShaderType ShaderType = iota
	FragmentShaderType
	UnknownShaderType
)

func (t ShaderType) String() string {
	switch t {
	case VertexShaderType:
		return "vert"
	case FragmentShaderType:
		return "frag"
	}
	return "unknown"
}

// ErrShaderNotFound is returned when a pipeline names a shader the
// library does not have.
var ErrShaderNotFound = errors.New("shader not found")

// embedded holds the modules shipped with the binary, they are used
// when no other shaders were loaded.
var embedded = packr.NewBox("../../assets/shaders")

// parseShaderName splits a compiled shader file name. It is important that
// the file name does not contain more than two dots, the first is always the
// name of the shader, second is type, and the third one ensured that the
// shader is compiled (only compiled shaders have an .spv extension).
func parseShaderName(file string) (string, ShaderType, bool) {
	base := filepath.Base(filepath.ToSlash(file))
	if !strings.HasSuffix(base, shaderSuffix) {
		return "", UnknownShaderType, false
	}
	nodes := strings.Split(strings.TrimSuffix(base, shaderSuffix), ".")
	if len(nodes) != 2 || nodes[0] == "" {
		return "", UnknownShaderType, false
	}
	switch nodes[1] {
	case "vert":
		return nodes[0], VertexShaderType, true
	case "frag":
		return nodes[0], FragmentShaderType, true
	}
	return "", UnknownShaderType, false
}

// NewShaderLibrary creates an empty library.
func NewShaderLibrary() *ShaderLibrary {
	return &ShaderLibrary{
		modules: make(map[string][UnknownShaderType][]byte),
	}
}

// LoadShaders creates a library from path, that is either a directory or
// a kar archive of compiled shaders. When path does not exist the embedded
// shaders are used.
func LoadShaders(path string) (*ShaderLibrary, error) {
	lib := NewShaderLibrary()
	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return lib, lib.LoadEmbedded()
	case err != nil:
		return nil, errors.Wrap(err, "shaders")
	case info.IsDir():
		return lib, lib.LoadDirectory(path)
	case strings.HasSuffix(path, archiveSuffix):
		return lib, lib.LoadArchive(path)
	}
	return nil, errors.Errorf("shaders: %s is neither a directory nor a kar archive", path)
}

// ShaderLibrary holds compiled shader modules by name and type.
type ShaderLibrary struct {
	mu      sync.RWMutex
	modules map[string][UnknownShaderType][]byte
}

// Add adds a compiled module under its file name, files that are not
// compiled shaders are skipped.
func (l *ShaderLibrary) Add(file string, code []byte) error {
	name, typ, ok := parseShaderName(file)
	if !ok {
		return nil
	}
	if len(code) < 4 || len(code)%4 != 0 || binary.LittleEndian.Uint32(code) != spirvMagic {
		return errors.Errorf("shader %s is not a SPIR-V module", file)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	m := l.modules[name]
	m[typ] = code
	l.modules[name] = m
	return nil
}

// LoadDirectory adds every compiled shader under dir.
func (l *ShaderLibrary) LoadDirectory(dir string) error {
	return filepath.WalkDir(dir, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() {
			return nil
		}
		if _, _, ok := parseShaderName(path); !ok {
			return nil
		}
		code, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return l.Add(path, code)
	})
}

// LoadArchive adds every compiled shader of a kar archive.
func (l *ShaderLibrary) LoadArchive(path string) error {
	ar, err := kar.OpenFile(path)
	if err != nil {
		return errors.Wrap(err, "shader archive")
	}
	defer ar.Close()
	for _, name := range ar.Names() {
		if _, _, ok := parseShaderName(name); !ok {
			continue
		}
		code, err := ar.ReadAll(name)
		if err != nil {
			return errors.Wrapf(err, "shader archive %s", path)
		}
		if err := l.Add(name, code); err != nil {
			return err
		}
	}
	return nil
}

// LoadEmbedded adds the shaders shipped with the binary.
func (l *ShaderLibrary) LoadEmbedded() error {
	for _, name := range embedded.List() {
		if _, _, ok := parseShaderName(name); !ok {
			continue
		}
		code, err := embedded.Find(name)
		if err != nil {
			return errors.Wrapf(err, "embedded shader %s", name)
		}
		if err := l.Add(name, code); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the vertex and fragment modules of a shader. Shaders without
// a vertex module use DefaultVertexShader's.
func (l *ShaderLibrary) Get(name string) (vert, frag []byte, err error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.modules[name]
	if !ok || m[FragmentShaderType] == nil {
		return nil, nil, errors.Wrapf(ErrShaderNotFound, "%s.%s%s", name, FragmentShaderType, shaderSuffix)
	}
	vert = m[VertexShaderType]
	if vert == nil {
		vert = l.modules[DefaultVertexShader][VertexShaderType]
	}
	if vert == nil {
		return nil, nil, errors.Wrapf(ErrShaderNotFound, "%s.%s%s", name, VertexShaderType, shaderSuffix)
	}
	return vert, m[FragmentShaderType], nil
}

// Names returns the names of the shaders with a fragment module.
func (l *ShaderLibrary) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var names []string
	for name, m := range l.modules {
		if m[FragmentShaderType] != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
