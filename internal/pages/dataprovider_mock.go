package pages

import (
	"io/fs"
	"path"
	"time"
)

// MockDataProvider is an in-memory DataProvider for tests
type MockDataProvider struct {
	files map[string][]byte
}

// NewMockDataProvider creates an empty mock provider
func NewMockDataProvider() *MockDataProvider {
	return &MockDataProvider{files: make(map[string][]byte)}
}

// AddFile adds a file to the mock provider
func (m *MockDataProvider) AddFile(name string, content []byte) {
	m.files[name] = content
}

// ReadFile reads a file from the mock storage
func (m *MockDataProvider) ReadFile(name string) ([]byte, error) {
	content, exists := m.files[name]
	if !exists {
		return nil, fs.ErrNotExist
	}
	return content, nil
}

// ReadDir lists the files directly inside name
func (m *MockDataProvider) ReadDir(name string) ([]fs.DirEntry, error) {
	var entries []fs.DirEntry
	for filePath := range m.files {
		if path.Dir(filePath) == name {
			entries = append(entries, &mockDirEntry{name: path.Base(filePath)})
		}
	}
	if len(entries) == 0 {
		return nil, fs.ErrNotExist
	}
	return entries, nil
}

type mockDirEntry struct {
	name string
}

func (e *mockDirEntry) Name() string               { return e.name }
func (e *mockDirEntry) IsDir() bool                { return false }
func (e *mockDirEntry) Type() fs.FileMode          { return 0 }
func (e *mockDirEntry) Info() (fs.FileInfo, error) { return &mockFileInfo{name: e.name}, nil }

type mockFileInfo struct {
	name string
}

func (i *mockFileInfo) Name() string       { return i.name }
func (i *mockFileInfo) Size() int64        { return 0 }
func (i *mockFileInfo) Mode() fs.FileMode  { return 0 }
func (i *mockFileInfo) ModTime() time.Time { return time.Time{} }
func (i *mockFileInfo) IsDir() bool        { return false }
func (i *mockFileInfo) Sys() interface{}   { return nil }
