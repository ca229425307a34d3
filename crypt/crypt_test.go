package crypt

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Screamnox/sarchura/types"
	"github.com/Screamnox/sarchura/types/config"
	"github.com/Screamnox/sarchura/types/mocks"
	"github.com/anatol/luks.go"
	"github.com/gofrs/uuid"
	"github.com/twpayne/go-vfs/v4/vfst"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestCrypt(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Crypt test suite")
}

// scriptedSource hands out one passphrase per attempt, repeating the last
// one once the script runs out.
type scriptedSource struct {
	values []string
	calls  int
}

func (s *scriptedSource) Name() string { return "scripted" }

func (s *scriptedSource) Passphrase(attempt int) (string, error) {
	s.calls++
	if attempt > len(s.values) {
		return s.values[len(s.values)-1], nil
	}
	return s.values[attempt-1], nil
}

var _ = Describe("Format", func() {
	var cfg *config.Config
	var runner *mocks.FakeRunner
	version := "cryptsetup 2.7.2 flags: UDEV BLKID KEYRING FIPS KERNEL_CAPI HW_OPAL \n"

	BeforeEach(func() {
		version = "cryptsetup 2.7.2 flags: UDEV BLKID KEYRING FIPS KERNEL_CAPI HW_OPAL \n"
		runner = mocks.NewFakeRunner()
		runner.SideEffect = func(command string, args ...string) ([]byte, error) {
			if command == "cryptsetup" && len(args) > 0 && args[0] == "--version" {
				return []byte(version), nil
			}
			return nil, nil
		}

		cfg = config.NewConfig(
			config.WithLogger(types.NewNullLogger()),
			config.WithRunner(runner),
			config.WithSecrets(&scriptedSource{values: []string{"hunter2"}}),
		)
		cfg.Plan = &types.InstallPlan{Device: "/dev/vda"}
		Expect(cfg.Plan.Sanitize()).To(Succeed())
	})

	It("formats with a deterministic UUID and the passphrase on stdin", func() {
		volume, err := Format(cfg, "/dev/vda2")
		Expect(err).ToNot(HaveOccurred())

		wantUUID := uuid.NewV5(uuid.NamespaceURL, "/dev/vda2").String()
		Expect(runner.CmdsMatch([][]string{
			{"cryptsetup", "--version"},
			{"cryptsetup", "luksFormat", "--type", "luks2", "--iter-time", "5",
				"-q", "--uuid", wantUUID, "/dev/vda2"},
		})).To(Succeed())
		Expect(runner.LastStdin()).To(Equal("hunter2"))

		Expect(volume.Device).To(Equal("/dev/vda2"))
		Expect(volume.UUID).To(Equal(wantUUID))
		Expect(volume.MapperName).To(Equal(cfg.Plan.MapperName))
	})

	It("refuses a cryptsetup older than the minimum", func() {
		version = "cryptsetup 2.3.0 flags: UDEV BLKID\n"

		_, err := Format(cfg, "/dev/vda2")
		var setupErr *types.EncryptionSetupError
		Expect(errors.As(err, &setupErr)).To(BeTrue())
		Expect(setupErr.Op).To(Equal("version check"))
		// Nothing destructive ran.
		Expect(runner.GetCmds()).To(HaveLen(1))
	})

	It("wraps luksFormat failures", func() {
		runner.SideEffect = func(command string, args ...string) ([]byte, error) {
			if len(args) > 0 && args[0] == "--version" {
				return []byte(version), nil
			}
			return []byte("device busy"), os.ErrPermission
		}

		_, err := Format(cfg, "/dev/vda2")
		var setupErr *types.EncryptionSetupError
		Expect(errors.As(err, &setupErr)).To(BeTrue())
		Expect(setupErr.Op).To(Equal("format"))
		Expect(err.Error()).To(ContainSubstring("device busy"))
	})
})

var _ = Describe("Open", func() {
	var cfg *config.Config
	var runner *mocks.FakeRunner
	var cleanup func()
	var volume *types.EncryptedVolume
	var unlocked []string
	var unlockErr func(passphrase string) error
	originalUnlock := luksUnlock

	BeforeEach(func() {
		fs, c, err := vfst.NewTestFS(map[string]interface{}{
			"/dev/mapper/cryptlvm": "",
		})
		Expect(err).ToNot(HaveOccurred())
		cleanup = c

		runner = mocks.NewFakeRunner()
		cfg = config.NewConfig(
			config.WithLogger(types.NewNullLogger()),
			config.WithRunner(runner),
			config.WithFs(fs),
		)
		volume = &types.EncryptedVolume{Device: "/dev/vda2", MapperName: "cryptlvm"}

		unlocked = nil
		unlockErr = func(string) error { return nil }
		luksUnlock = func(device, mapper, passphrase string) error {
			Expect(device).To(Equal("/dev/vda2"))
			Expect(mapper).To(Equal("cryptlvm"))
			unlocked = append(unlocked, passphrase)
			return unlockErr(passphrase)
		}
	})

	AfterEach(func() {
		luksUnlock = originalUnlock
		cleanup()
	})

	It("unlocks on the first attempt and waits for the mapping", func() {
		cfg.Secrets = &scriptedSource{values: []string{"hunter2"}}

		Expect(Open(cfg, volume)).To(Succeed())
		Expect(unlocked).To(Equal([]string{"hunter2"}))
		Expect(runner.IncludesCmds([][]string{{"udevadm", "settle"}})).To(Succeed())
	})

	It("retries with a fresh passphrase after a rejection", func() {
		cfg.Secrets = &scriptedSource{values: []string{"wrong", "right"}}
		unlockErr = func(passphrase string) error {
			if passphrase == "wrong" {
				return luks.ErrPassphraseDoesNotMatch
			}
			return nil
		}

		Expect(Open(cfg, volume)).To(Succeed())
		Expect(unlocked).To(Equal([]string{"wrong", "right"}))
	})

	It("gives up when the source repeats the rejected passphrase", func() {
		cfg.Secrets = &scriptedSource{values: []string{"same"}}
		unlockErr = func(string) error { return luks.ErrPassphraseDoesNotMatch }

		err := Open(cfg, volume)
		var wrong *types.WrongPassphraseError
		Expect(errors.As(err, &wrong)).To(BeTrue())
		// The repeat was caught before touching the device again.
		Expect(unlocked).To(HaveLen(1))
	})

	It("gives up after the attempt budget", func() {
		cfg.Secrets = &scriptedSource{values: []string{"a", "b", "c", "d"}}
		unlockErr = func(string) error { return luks.ErrPassphraseDoesNotMatch }

		err := Open(cfg, volume)
		var wrong *types.WrongPassphraseError
		Expect(errors.As(err, &wrong)).To(BeTrue())
		Expect(unlocked).To(HaveLen(3))
	})

	It("does not retry failures that are not about the passphrase", func() {
		cfg.Secrets = &scriptedSource{values: []string{"a", "b"}}
		unlockErr = func(string) error { return errors.New("header corrupt") }

		err := Open(cfg, volume)
		var setupErr *types.EncryptionSetupError
		Expect(errors.As(err, &setupErr)).To(BeTrue())
		Expect(setupErr.Op).To(Equal("open"))
		Expect(unlocked).To(HaveLen(1))
	})
})

var _ = Describe("Close", func() {
	It("is a no-op when the mapping is already gone", func() {
		runner := mocks.NewFakeRunner()
		cfg := config.NewConfig(
			config.WithLogger(types.NewNullLogger()),
			config.WithRunner(runner),
		)
		volume := &types.EncryptedVolume{Device: "/dev/vda2", MapperName: "sarchura-test-not-mapped"}

		Expect(Close(cfg, volume)).To(Succeed())
		Expect(runner.GetCmds()).To(BeEmpty())
	})
})

var _ = Describe("NewPassphraseSource", func() {
	logger := types.NewNullLogger()

	plan := func(source, value string) *types.InstallPlan {
		return &types.InstallPlan{
			Passphrase: types.PassphraseRef{Source: source, Value: value},
		}
	}

	It("serves a literal value", func() {
		src, err := NewPassphraseSource(plan(types.PassphraseLiteral, "hunter2"), logger)
		Expect(err).ToNot(HaveOccurred())
		Expect(src.Passphrase(1)).To(Equal("hunter2"))
	})

	It("rejects an empty literal", func() {
		_, err := NewPassphraseSource(plan(types.PassphraseLiteral, ""), logger)
		Expect(err).To(HaveOccurred())
	})

	It("reads from the environment", func() {
		os.Setenv("SARCHURA_TEST_PASSPHRASE", "from-env")
		defer os.Unsetenv("SARCHURA_TEST_PASSPHRASE")

		src, err := NewPassphraseSource(plan(types.PassphraseEnv, "SARCHURA_TEST_PASSPHRASE"), logger)
		Expect(err).ToNot(HaveOccurred())
		Expect(src.Passphrase(1)).To(Equal("from-env"))
	})

	It("fails on an unset environment variable", func() {
		src, err := NewPassphraseSource(plan(types.PassphraseEnv, "SARCHURA_TEST_UNSET"), logger)
		Expect(err).ToNot(HaveOccurred())
		_, err = src.Passphrase(1)
		Expect(err).To(HaveOccurred())
	})

	It("reads a file and strips the trailing newline", func() {
		dir, err := os.MkdirTemp("", "secrets")
		Expect(err).ToNot(HaveOccurred())
		defer os.RemoveAll(dir)

		path := filepath.Join(dir, "key")
		Expect(os.WriteFile(path, []byte("from-file\n"), 0600)).To(Succeed())

		src, err := NewPassphraseSource(plan(types.PassphraseFile, path), logger)
		Expect(err).ToNot(HaveOccurred())
		Expect(src.Passphrase(1)).To(Equal("from-file"))
	})

	It("rejects a source it does not know", func() {
		_, err := NewPassphraseSource(plan("keyring", ""), logger)
		Expect(err).To(MatchError(ContainSubstring("unknown passphrase source")))
	})
})
