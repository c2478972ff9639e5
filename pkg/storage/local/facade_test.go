package local

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"

	"github.com/sgl-project/fallible/pkg/logging"
	"github.com/sgl-project/fallible/pkg/storage"
)

const root = "/var/lib/fallible/invoices"

// deniedFs fails every Stat with a permission error.
type deniedFs struct {
	afero.Fs
}

func (deniedFs) Stat(name string) (os.FileInfo, error) {
	return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrPermission}
}

// pruningFs removes the parent directory right before the first file is
// created in it, as a delete in another process would.
type pruningFs struct {
	afero.Fs
	pruned int
}

func (p *pruningFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&os.O_CREATE != 0 && p.pruned == 0 {
		p.pruned++
		if err := p.Fs.RemoveAll(filepath.Dir(name)); err != nil {
			return nil, err
		}
	}
	return p.Fs.OpenFile(name, flag, perm)
}

func localConfig() storage.Config {
	return storage.Config{
		Provider:    storage.ProviderLocal,
		Description: "invoice archive",
		Root:        root,
	}
}

var _ = Describe("Local facade", func() {
	var (
		ctx    context.Context
		fsys   afero.Fs
		facade *Facade
	)

	BeforeEach(func() {
		ctx = context.Background()
		fsys = afero.NewMemMapFs()
		Expect(fsys.MkdirAll(root, 0o755)).To(Succeed())

		var err error
		facade, err = New(ctx, localConfig(), logging.NewTestLogger(), WithFs(fsys))
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("New", func() {
		It("names the store after its root directory", func() {
			md := facade.Describe()
			Expect(md.Name).To(Equal("invoices"))
			Expect(md.Description).To(Equal("invoice archive"))
			Expect(md.Identity).To(Equal(storage.LocalPathID{Path: root}))
			Expect(md.String()).To(Equal("invoices (local " + root + ")"))
		})

		It("accepts an explicit name equal to the base name", func() {
			cfg := localConfig()
			cfg.Name = "invoices"
			_, err := New(ctx, cfg, nil, WithFs(fsys))
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects a name that differs from the base name", func() {
			cfg := localConfig()
			cfg.Name = "receipts"
			_, err := New(ctx, cfg, nil, WithFs(fsys))
			Expect(storage.IsConstructionError(err)).To(BeTrue())
			Expect(err).To(MatchError(storage.ErrInvalidConfig))
		})

		It("fails for a missing root", func() {
			cfg := localConfig()
			cfg.Root = "/var/lib/fallible/missing"
			_, err := New(ctx, cfg, nil, WithFs(fsys))
			Expect(storage.IsConstructionError(err)).To(BeTrue())
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("fails when the root is a file", func() {
			Expect(afero.WriteFile(fsys, "/var/lib/fallible/plain", []byte("x"), 0o644)).To(Succeed())
			cfg := localConfig()
			cfg.Root = "/var/lib/fallible/plain"
			_, err := New(ctx, cfg, nil, WithFs(fsys))
			Expect(storage.IsConstructionError(err)).To(BeTrue())
			Expect(err).To(MatchError(storage.ErrInvalidConfig))
		})

		It("fails when the root cannot be inspected", func() {
			_, err := New(ctx, localConfig(), nil, WithFs(deniedFs{fsys}))
			Expect(storage.IsConstructionError(err)).To(BeTrue())
			Expect(storage.IsAccessDenied(err)).To(BeTrue())
		})

		It("rejects a relative root before touching the filesystem", func() {
			cfg := localConfig()
			cfg.Root = "relative/invoices"
			_, err := New(ctx, cfg, nil, WithFs(fsys))
			Expect(err).To(MatchError(storage.ErrInvalidConfig))
			Expect(storage.IsConstructionError(err)).To(BeFalse())
		})

		It("rejects another provider's config", func() {
			cfg := localConfig()
			cfg.Provider = storage.ProviderS3
			_, err := New(ctx, cfg, nil, WithFs(fsys))
			Expect(err).To(MatchError(storage.ErrInvalidConfig))
		})
	})

	Describe("paths", func() {
		DescribeTable("rejects keys outside the root",
			func(key string) {
				_, err := facade.Read(ctx, key, nil)
				Expect(storage.IsInvalidPath(err)).To(BeTrue(), "read %q: %v", key, err)

				err = facade.Write(ctx, key, []byte("x"), nil)
				Expect(storage.IsInvalidPath(err)).To(BeTrue(), "write %q: %v", key, err)
			},
			Entry("parent", "../escape.txt"),
			Entry("nested parent", "2024/../../escape.txt"),
			Entry("root itself", "."),
			Entry("empty", ""),
			Entry("temp file name", "2024/"+tempPrefix+"01.pdf"),
			Entry("temp file name at the root", tempPrefix+"x"),
		)

		It("keeps reserved names out of every listed key", func() {
			Expect(facade.Write(ctx, "2024/"+tempPrefix+"01.pdf", []byte("x"), nil)).NotTo(Succeed())
			Expect(facade.Exists(ctx, "2024/"+tempPrefix+"01.pdf")).To(BeFalse())

			Expect(facade.Write(ctx, tempPrefix+"dir/01.pdf", []byte("jan"), nil)).To(Succeed())
			keys, err := facade.List(ctx, tempPrefix+"dir/")
			Expect(err).NotTo(HaveOccurred())
			Expect(keys).To(Equal([]string{tempPrefix + "dir/01.pdf"}))
		})

		It("keeps absolute-looking keys inside the root", func() {
			Expect(facade.Write(ctx, "/2024/01.pdf", []byte("jan"), nil)).To(Succeed())
			ok, err := afero.Exists(fsys, root+"/2024/01.pdf")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		})

		It("rejects list prefixes that climb out of the root", func() {
			_, err := facade.List(ctx, "../other/")
			Expect(storage.IsInvalidPath(err)).To(BeTrue())
		})
	})

	Describe("Write", func() {
		It("recreates a parent directory pruned before the temp file exists", func() {
			dir, err := os.MkdirTemp("", "invoices")
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(os.RemoveAll, dir)

			cfg := localConfig()
			cfg.Root = dir
			pfs := &pruningFs{Fs: afero.NewOsFs()}
			f, err := New(ctx, cfg, nil, WithFs(pfs))
			Expect(err).NotTo(HaveOccurred())

			Expect(f.Write(ctx, "2024/03.pdf", []byte("mar"), nil)).To(Succeed())
			Expect(pfs.pruned).To(Equal(1))

			data, err := f.Read(ctx, "2024/03.pdf", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("mar")))
		})

		It("creates parent directories", func() {
			Expect(facade.Write(ctx, "2024/q1/jan.pdf", []byte("jan"), nil)).To(Succeed())
			isDir, err := afero.IsDir(fsys, root+"/2024/q1")
			Expect(err).NotTo(HaveOccurred())
			Expect(isDir).To(BeTrue())
		})

		It("reports a read-only filesystem as access denied", func() {
			ro, err := New(ctx, localConfig(), nil, WithFs(afero.NewReadOnlyFs(fsys)))
			Expect(err).NotTo(HaveOccurred())

			err = ro.Write(ctx, "2024/jan.pdf", []byte("jan"), nil)
			Expect(storage.IsAccessDenied(err)).To(BeTrue(), "got %v", err)
		})
	})

	Describe("directories", func() {
		BeforeEach(func() {
			Expect(facade.Write(ctx, "2024/jan.pdf", []byte("jan"), nil)).To(Succeed())
		})

		It("are not objects", func() {
			Expect(facade.Exists(ctx, "2024")).To(BeFalse())
			_, err := facade.Read(ctx, "2024", nil)
			Expect(storage.IsNotFound(err)).To(BeTrue())
			_, err = facade.Stat(ctx, "2024")
			Expect(storage.IsNotFound(err)).To(BeTrue())
			Expect(facade.Delete(ctx, "2024")).To(Succeed())
			Expect(facade.Exists(ctx, "2024/jan.pdf")).To(BeTrue())
		})

		It("are pruned once their last object is deleted", func() {
			Expect(facade.Delete(ctx, "2024/jan.pdf")).To(Succeed())
			ok, err := afero.DirExists(fsys, root+"/2024")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())

			ok, err = afero.DirExists(fsys, root)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue(), "the root itself is never pruned")
		})
	})

	Describe("List", func() {
		It("hides in-flight temp files", func() {
			Expect(facade.Write(ctx, "a.pdf", []byte("a"), nil)).To(Succeed())
			Expect(afero.WriteFile(fsys, root+"/"+tempPrefix+"b.pdf~123", []byte("b"), 0o644)).To(Succeed())

			keys, err := facade.List(ctx, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(keys).To(Equal([]string{"a.pdf"}))
		})

		It("matches partial names, not only directories", func() {
			for _, k := range []string{"2024/jan.pdf", "2024/june.pdf", "2024/feb.pdf"} {
				Expect(facade.Write(ctx, k, []byte(k), nil)).To(Succeed())
			}
			keys, err := facade.List(ctx, "2024/ju")
			Expect(err).NotTo(HaveOccurred())
			Expect(keys).To(Equal([]string{"2024/june.pdf"}))
		})

		It("returns an empty list for a missing directory", func() {
			keys, err := facade.List(ctx, "1999/")
			Expect(err).NotTo(HaveOccurred())
			Expect(keys).NotTo(BeNil())
			Expect(keys).To(BeEmpty())
		})
	})

	Describe("ListVersions", func() {
		It("reports the null version for existing files", func() {
			Expect(facade.Write(ctx, "jan.pdf", []byte("jan"), nil)).To(Succeed())
			Expect(facade.ListVersions(ctx, "jan.pdf")).To(Equal([]string{"null"}))
			Expect(facade.ListVersions(ctx, "feb.pdf")).To(BeEmpty())
		})
	})

	Describe("Stat", func() {
		It("guesses the content type from the extension", func() {
			Expect(facade.Write(ctx, "notes.txt", []byte("hello"), nil)).To(Succeed())
			md, err := facade.Stat(ctx, "notes.txt")
			Expect(err).NotTo(HaveOccurred())
			Expect(md.ContentType).To(HavePrefix("text/plain"))
			Expect(md.VersionID).To(Equal("null"))
			Expect(md.Size).To(BeEquivalentTo(5))
		})

		It("falls back to octet-stream", func() {
			Expect(facade.Write(ctx, "blob", []byte{0x1}, nil)).To(Succeed())
			md, err := facade.Stat(ctx, "blob")
			Expect(err).NotTo(HaveOccurred())
			Expect(md.ContentType).To(Equal("application/octet-stream"))
		})
	})

	Describe("Exists", func() {
		It("masks and logs failures other than not found", func() {
			logger, hook := logrustest.NewNullLogger()
			denied := &Facade{
				fs:       deniedFs{fsys},
				root:     root,
				metadata: facade.Describe(),
				logger:   logging.ForLogrus(logrus.NewEntry(logger)),
			}

			Expect(denied.Exists(ctx, "jan.pdf")).To(BeFalse())
			Expect(hook.LastEntry()).NotTo(BeNil())
			Expect(hook.LastEntry().Level).To(Equal(logrus.WarnLevel))
			Expect(hook.LastEntry().Data).To(HaveKeyWithValue("key", "jan.pdf"))

			_, err := denied.Probe(ctx, "jan.pdf")
			Expect(storage.IsAccessDenied(err)).To(BeTrue())
		})

		It("does not log for absent objects", func() {
			logger, hook := logrustest.NewNullLogger()
			facade.logger = logging.ForLogrus(logrus.NewEntry(logger))

			Expect(facade.Exists(ctx, "missing.pdf")).To(BeFalse())
			Expect(hook.AllEntries()).To(BeEmpty())
		})
	})
})
