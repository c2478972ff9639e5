package main

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sgl-project/fallible/pkg/storage"
)

// MockFacade is a testify mock of storage.Facade.
type MockFacade struct {
	mock.Mock
}

var _ storage.Facade = (*MockFacade)(nil)

func (m *MockFacade) Read(ctx context.Context, path string, decrypt storage.TransformFunc) ([]byte, error) {
	args := m.Called(ctx, path, decrypt)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *MockFacade) Write(ctx context.Context, path string, data []byte, encrypt storage.TransformFunc) error {
	return m.Called(ctx, path, data, encrypt).Error(0)
}

func (m *MockFacade) List(ctx context.Context, dirPath string) ([]string, error) {
	args := m.Called(ctx, dirPath)
	keys, _ := args.Get(0).([]string)
	return keys, args.Error(1)
}

func (m *MockFacade) ListVersions(ctx context.Context, filePath string) ([]string, error) {
	args := m.Called(ctx, filePath)
	versions, _ := args.Get(0).([]string)
	return versions, args.Error(1)
}

func (m *MockFacade) Delete(ctx context.Context, path string) error {
	return m.Called(ctx, path).Error(0)
}

func (m *MockFacade) Move(ctx context.Context, from, to string) error {
	return m.Called(ctx, from, to).Error(0)
}

func (m *MockFacade) Copy(ctx context.Context, from, to string) error {
	return m.Called(ctx, from, to).Error(0)
}

func (m *MockFacade) Stat(ctx context.Context, path string) (*storage.ObjectMetadata, error) {
	args := m.Called(ctx, path)
	md, _ := args.Get(0).(*storage.ObjectMetadata)
	return md, args.Error(1)
}

func (m *MockFacade) Exists(ctx context.Context, path string) bool {
	return m.Called(ctx, path).Bool(0)
}

func (m *MockFacade) Describe() storage.StoreMetadata {
	return m.Called().Get(0).(storage.StoreMetadata)
}
