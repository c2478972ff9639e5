package storage

import "fmt"

// Provider represents the storage backend family.
type Provider string

const (
	ProviderS3    Provider = "s3"
	ProviderLocal Provider = "local"
)

// StoreIdentity identifies a store by backend family and location. The set of
// implementations is closed: only ObjectStoreID and LocalPathID satisfy it.
// Generic code treats an identity as opaque; backend code switches on the
// concrete type.
type StoreIdentity interface {
	// Provider returns the backend family that owns this identity.
	Provider() Provider
	// String returns the locator (ARN-equivalent or root path).
	String() string

	storeIdentity()
}

// ObjectStoreID identifies a bucket-style store by its backend-assigned
// unique resource identifier, e.g. "arn:aws:s3:::my-bucket".
type ObjectStoreID struct {
	Locator string
}

func (ObjectStoreID) Provider() Provider { return ProviderS3 }
func (id ObjectStoreID) String() string  { return id.Locator }
func (ObjectStoreID) storeIdentity()     {}

// LocalPathID identifies a local store by its absolute root directory.
type LocalPathID struct {
	Path string
}

func (LocalPathID) Provider() Provider { return ProviderLocal }
func (id LocalPathID) String() string  { return id.Path }
func (LocalPathID) storeIdentity()     {}

// StoreMetadata describes a store bound to a facade. It is captured once at
// construction and never changes afterwards.
type StoreMetadata struct {
	Identity StoreIdentity
	// Name is the backend-addressable name: bucket name, or the base name of
	// the local root directory.
	Name string
	// Description says why the store exists. Mandatory, for operability and
	// audit.
	Description string
}

// String implements fmt.Stringer.
func (m StoreMetadata) String() string {
	if m.Identity == nil {
		return m.Name
	}
	return fmt.Sprintf("%s (%s %s)", m.Name, m.Identity.Provider(), m.Identity)
}

// NewStoreMetadata validates and assembles StoreMetadata.
func NewStoreMetadata(id StoreIdentity, name, description string) (StoreMetadata, error) {
	if id == nil {
		return StoreMetadata{}, fmt.Errorf("%w: store identity is required", ErrInvalidConfig)
	}
	if name == "" {
		return StoreMetadata{}, fmt.Errorf("%w: store name is required", ErrInvalidConfig)
	}
	if description == "" {
		return StoreMetadata{}, fmt.Errorf("%w: store description is required", ErrInvalidConfig)
	}
	return StoreMetadata{Identity: id, Name: name, Description: description}, nil
}
