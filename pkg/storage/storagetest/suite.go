// Package storagetest holds the conformance suite every storage.Facade
// implementation runs in its own tests.
package storagetest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/sgl-project/fallible/pkg/storage"
)

// Factory returns a facade bound to an empty or shared store. Each test
// works under its own random prefix, so a shared store is fine.
type Factory func(t *testing.T) storage.Facade

// Suite checks the behaviour every backend must share.
type Suite struct {
	suite.Suite

	NewFacade Factory

	ctx    context.Context
	facade storage.Facade
	prefix string
}

// Run executes the suite against the facades newFacade builds.
func Run(t *testing.T, newFacade Factory) {
	suite.Run(t, &Suite{NewFacade: newFacade})
}

func (s *Suite) SetupTest() {
	s.ctx = context.Background()
	s.facade = s.NewFacade(s.T())
	s.Require().NotNil(s.facade)
	s.prefix = "contract-" + uuid.NewString() + "/"
}

func (s *Suite) key(name string) string {
	return s.prefix + name
}

func (s *Suite) write(name string, data []byte) {
	s.Require().NoError(s.facade.Write(s.ctx, s.key(name), data, nil))
}

// XOR is a reversible stand-in for a real cipher.
func XOR(key byte) storage.TransformFunc {
	return func(b []byte) ([]byte, error) {
		for i := range b {
			b[i] ^= key
		}
		return b, nil
	}
}

func (s *Suite) TestRoundTrip() {
	data := []byte("quarterly ledger export")
	s.write("ledger.csv", data)

	got, err := s.facade.Read(s.ctx, s.key("ledger.csv"), nil)
	s.Require().NoError(err)
	s.Equal(data, got)
}

func (s *Suite) TestEmptyObject() {
	s.write("empty", []byte{})

	got, err := s.facade.Read(s.ctx, s.key("empty"), nil)
	s.Require().NoError(err)
	s.Empty(got)
	s.True(s.facade.Exists(s.ctx, s.key("empty")))
}

func (s *Suite) TestEncryptedRoundTrip() {
	data := []byte("patient record 0042")
	orig := bytes.Clone(data)

	s.Require().NoError(s.facade.Write(s.ctx, s.key("record"), data, XOR(0x5a)))
	s.Equal(orig, data, "caller buffer must not be modified")

	raw, err := s.facade.Read(s.ctx, s.key("record"), nil)
	s.Require().NoError(err)
	s.NotEqual(data, raw, "stored bytes must be the encrypted form")

	plain, err := s.facade.Read(s.ctx, s.key("record"), XOR(0x5a))
	s.Require().NoError(err)
	s.Equal(data, plain)
}

func (s *Suite) TestEncryptFailure() {
	cause := errors.New("key unavailable")
	err := s.facade.Write(s.ctx, s.key("secret"), []byte("x"), func([]byte) ([]byte, error) {
		return nil, cause
	})
	s.Require().Error(err)
	s.True(storage.IsTransformError(err))
	s.ErrorIs(err, cause)
	s.False(s.facade.Exists(s.ctx, s.key("secret")), "failed encrypt must not write")
}

func (s *Suite) TestDecryptFailure() {
	s.write("blob", []byte("ciphertext"))

	cause := errors.New("authentication tag mismatch")
	got, err := s.facade.Read(s.ctx, s.key("blob"), func([]byte) ([]byte, error) {
		return []byte("partial"), cause
	})
	s.Nil(got)
	s.True(storage.IsTransformError(err))
	s.ErrorIs(err, cause)
}

func (s *Suite) TestReadMissing() {
	_, err := s.facade.Read(s.ctx, s.key("missing"), nil)
	s.Require().Error(err)
	s.True(storage.IsNotFound(err), "got %v", err)
}

func (s *Suite) TestOverwrite() {
	s.write("doc", []byte("v1"))
	s.write("doc", []byte("version two"))

	got, err := s.facade.Read(s.ctx, s.key("doc"), nil)
	s.Require().NoError(err)
	s.Equal([]byte("version two"), got)
}

func (s *Suite) TestExistenceLifecycle() {
	k := s.key("lifecycle")
	s.False(s.facade.Exists(s.ctx, k))

	s.write("lifecycle", []byte("x"))
	s.True(s.facade.Exists(s.ctx, k))

	s.Require().NoError(s.facade.Delete(s.ctx, k))
	s.False(s.facade.Exists(s.ctx, k))

	ok, err := storage.ProbeExists(s.ctx, s.facade, k)
	s.NoError(err)
	s.False(ok)
}

func (s *Suite) TestDeleteIsIdempotent() {
	k := s.key("never-written")
	s.NoError(s.facade.Delete(s.ctx, k))
	s.NoError(s.facade.Delete(s.ctx, k))
}

func (s *Suite) TestListCompleteAndSorted() {
	names := []string{"e.txt", "a.txt", "c/d.txt", "b.txt", "c/a/b.txt", "f.txt"}
	rand.Shuffle(len(names), func(i, j int) { names[i], names[j] = names[j], names[i] })
	for _, n := range names {
		s.write(n, []byte(n))
	}
	s.Require().NoError(s.facade.Write(s.ctx, "outside-"+uuid.NewString(), []byte("x"), nil))

	want := make([]string, len(names))
	for i, n := range names {
		want[i] = s.key(n)
	}
	sort.Strings(want)

	got, err := s.facade.List(s.ctx, s.prefix)
	s.Require().NoError(err)
	s.Equal(want, got)

	sub, err := s.facade.List(s.ctx, s.key("c/"))
	s.Require().NoError(err)
	s.Equal([]string{s.key("c/a/b.txt"), s.key("c/d.txt")}, sub)
}

func (s *Suite) TestListNoMatch() {
	got, err := s.facade.List(s.ctx, s.key("nothing-here/"))
	s.Require().NoError(err)
	s.NotNil(got)
	s.Empty(got)
}

func (s *Suite) TestListVersions() {
	s.write("versioned", []byte("v1"))

	versions, err := s.facade.ListVersions(s.ctx, s.key("versioned"))
	s.Require().NoError(err)
	s.NotEmpty(versions)

	none, err := s.facade.ListVersions(s.ctx, s.key("absent"))
	s.Require().NoError(err)
	s.NotNil(none)
	s.Empty(none)
}

func (s *Suite) TestMove() {
	s.write("from", []byte("payload"))

	s.Require().NoError(s.facade.Move(s.ctx, s.key("from"), s.key("to")))
	s.False(s.facade.Exists(s.ctx, s.key("from")))

	got, err := s.facade.Read(s.ctx, s.key("to"), nil)
	s.Require().NoError(err)
	s.Equal([]byte("payload"), got)
}

func (s *Suite) TestMoveMissingSource() {
	err := s.facade.Move(s.ctx, s.key("ghost"), s.key("to"))
	s.Require().Error(err)
	s.True(storage.IsNotFound(err), "got %v", err)
	s.False(storage.IsPartialMove(err))
	s.False(s.facade.Exists(s.ctx, s.key("to")))
}

func (s *Suite) TestCopy() {
	s.write("src", []byte("original"))
	s.write("dst", []byte("stale"))

	s.Require().NoError(s.facade.Copy(s.ctx, s.key("src"), s.key("dst")))

	for _, name := range []string{"src", "dst"} {
		got, err := s.facade.Read(s.ctx, s.key(name), nil)
		s.Require().NoError(err)
		s.Equal([]byte("original"), got, name)
	}
}

func (s *Suite) TestCopyKeyNeedingEscape() {
	s.write("reports/Q1 summary+final.txt", []byte("q1"))

	s.Require().NoError(s.facade.Copy(s.ctx, s.key("reports/Q1 summary+final.txt"), s.key("copy.txt")))
	got, err := s.facade.Read(s.ctx, s.key("copy.txt"), nil)
	s.Require().NoError(err)
	s.Equal([]byte("q1"), got)
}

func (s *Suite) TestStat() {
	s.write("sized", []byte("12345"))

	md, err := s.facade.Stat(s.ctx, s.key("sized"))
	s.Require().NoError(err)
	s.Equal(s.key("sized"), md.Key)
	s.EqualValues(5, md.Size)
	s.False(md.LastModified.IsZero())

	_, err = s.facade.Stat(s.ctx, s.key("missing"))
	s.True(storage.IsNotFound(err), "got %v", err)
}

func (s *Suite) TestDescribe() {
	md := s.facade.Describe()
	s.NotEmpty(md.Name)
	s.NotEmpty(md.Description)
	s.Require().NotNil(md.Identity)
	s.NotEmpty(md.Identity.String())
	s.Equal(md, s.facade.Describe())
}

func (s *Suite) TestConcurrentWrites() {
	const n = 16

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.facade.Write(s.ctx, s.key(fmt.Sprintf("parallel/%02d", i)), []byte{byte(i)}, nil)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	keys, err := s.facade.List(s.ctx, s.key("parallel/"))
	s.Require().NoError(err)
	s.Len(keys, n)
}

func (s *Suite) TestConcurrentWriteDeleteSiblings() {
	const (
		workers = 8
		rounds  = 50
	)

	var wg sync.WaitGroup
	errs := make(chan error, workers*rounds*2)
	for g := 0; g < workers; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			key := s.key(fmt.Sprintf("shared/dir/k%d", g))
			for r := 0; r < rounds; r++ {
				if err := s.facade.Write(s.ctx, key, []byte{byte(r)}, nil); err != nil {
					errs <- fmt.Errorf("write %s: %w", key, err)
				}
				if err := s.facade.Delete(s.ctx, key); err != nil {
					errs <- fmt.Errorf("delete %s: %w", key, err)
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	keys, err := s.facade.List(s.ctx, s.key("shared/"))
	s.Require().NoError(err)
	s.Empty(keys)
}
