package tools

import (
	"io/fs"
	"testing/fstest"
)

// MockDataProvider implements DataProvider over an in-memory file tree,
// so tests can stand in for the embedded snapshot.
type MockDataProvider struct {
	files fstest.MapFS
}

// NewMockDataProvider creates an empty mock data provider.
func NewMockDataProvider() *MockDataProvider {
	return &MockDataProvider{files: fstest.MapFS{}}
}

// AddFile adds a file; parent directories are implied by its name.
func (m *MockDataProvider) AddFile(name string, content []byte) {
	m.files[name] = &fstest.MapFile{Data: content, Mode: 0644}
}

func (m *MockDataProvider) ReadFile(name string) ([]byte, error) {
	return fs.ReadFile(m.files, name)
}

func (m *MockDataProvider) ReadDir(name string) ([]fs.DirEntry, error) {
	return fs.ReadDir(m.files, name)
}

// SetDefaultDataProvider replaces the provider used by package-level
// functions. Tests use it to inject a mock.
func SetDefaultDataProvider(provider DataProvider) {
	defaultDataProvider = provider
}

// ResetDefaultDataProvider restores the embedded provider.
func ResetDefaultDataProvider() {
	defaultDataProvider = NewEmbeddedDataProvider()
}
