package types

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Screamnox/sarchura/constants"
)

// HomePolicy selects how the home volume consumes the volume group remainder.
type HomePolicy string

const (
	// HomeFull gives home every free extent left after root.
	HomeFull HomePolicy = "full"
	// HomeFullMinusReserve keeps a fixed reserve of free extents in the group.
	HomeFullMinusReserve HomePolicy = "full-minus-reserve"
)

// PartitionRole tags the two entries a provisioned disk carries.
type PartitionRole string

const (
	RoleESP PartitionRole = "esp"
	RoleLVM PartitionRole = "lvm"
)

// Passphrase source kinds understood by the encryption stage.
const (
	PassphraseLiteral = "literal"
	PassphraseEnv     = "env"
	PassphraseFile    = "file"
	PassphrasePlugin  = "plugin"
	PassphraseTPM     = "tpm"
)

// PassphraseRef points at where the encryption passphrase comes from. The
// value is interpreted per source: the passphrase itself for literal, a
// variable name for env, a path for file. Plugin and tpm ignore it.
type PassphraseRef struct {
	Source string `yaml:"source,omitempty" json:"source,omitempty"`
	Value  string `yaml:"value,omitempty" json:"-"`
}

// HomeSizing carries the remainder policy for the home volume.
type HomeSizing struct {
	Policy     HomePolicy `yaml:"policy,omitempty" json:"policy,omitempty"`
	ReserveMiB uint       `yaml:"reserve,omitempty" json:"reserve,omitempty"`
}

// Filesystems picks the filesystem for each logical volume. The ESP is always
// FAT32, firmware gives us no choice there.
type Filesystems struct {
	Root string `yaml:"root,omitempty" json:"root,omitempty"`
	Home string `yaml:"home,omitempty" json:"home,omitempty"`
}

// BootstrapSpec describes how the base system lands in the mounted target.
// An empty source means pacstrap with the given package list.
type BootstrapSpec struct {
	Source   string   `yaml:"source,omitempty" json:"source,omitempty"`
	Packages []string `yaml:"packages,omitempty" json:"packages,omitempty"`
	ISOPath  string   `yaml:"iso_path,omitempty" json:"iso_path,omitempty"`
}

// User is created inside the target during system configuration.
type User struct {
	Name         string   `yaml:"name" json:"name"`
	Groups       []string `yaml:"groups,omitempty" json:"groups,omitempty"`
	Sudoer       bool     `yaml:"sudoer,omitempty" json:"sudoer,omitempty"`
	PasswordHash string   `yaml:"passwd_hash,omitempty" json:"-"`
}

// SystemConfig is everything written into the installed tree after the
// filesystems are up: identity, console, boot entries, users.
type SystemConfig struct {
	Hostname     string   `yaml:"hostname,omitempty" json:"hostname,omitempty"`
	Timezone     string   `yaml:"timezone,omitempty" json:"timezone,omitempty"`
	Locale       string   `yaml:"locale,omitempty" json:"locale,omitempty"`
	Keymap       string   `yaml:"keymap,omitempty" json:"keymap,omitempty"`
	KernelParams []string `yaml:"kernel_params,omitempty" json:"kernel_params,omitempty"`
	Users        []User   `yaml:"users,omitempty" json:"users,omitempty"`
	CloudInit    []string `yaml:"cloud-init-paths,omitempty" json:"cloud-init-paths,omitempty"`
}

// InstallPlan is the immutable description of one provisioning run. It is
// built once from collected configuration, sanitized, and then only read.
type InstallPlan struct {
	Device       string         `yaml:"device,omitempty" json:"device,omitempty"`
	ConfirmErase string         `yaml:"confirm_erase,omitempty" json:"confirm_erase,omitempty"`
	ESPSizeMiB   uint           `yaml:"esp_size,omitempty" json:"esp_size,omitempty"`
	VolumeGroup  string         `yaml:"volume_group,omitempty" json:"volume_group,omitempty"`
	MapperName   string         `yaml:"mapper_name,omitempty" json:"mapper_name,omitempty"`
	RootSizeMiB  uint           `yaml:"root_size,omitempty" json:"root_size,omitempty"`
	Home         HomeSizing     `yaml:"home,omitempty" json:"home,omitempty"`
	Filesystems  Filesystems    `yaml:"filesystems,omitempty" json:"filesystems,omitempty"`
	InstallRoot  string         `yaml:"install_root,omitempty" json:"install_root,omitempty"`
	Passphrase   PassphraseRef  `yaml:"passphrase,omitempty" json:"passphrase,omitempty"`
	Bootstrap    *BootstrapSpec `yaml:"bootstrap,omitempty" json:"bootstrap,omitempty"`
	System       *SystemConfig  `yaml:"system,omitempty" json:"system,omitempty"`
	Reboot       bool           `yaml:"reboot,omitempty" json:"reboot,omitempty"`
	Poweroff     bool           `yaml:"poweroff,omitempty" json:"poweroff,omitempty"`
}

// Sanitize fills defaults and rejects plans that cannot be provisioned.
// It does not touch the system, pure data checks only.
func (p *InstallPlan) Sanitize() error {
	if p.Device == "" {
		return fmt.Errorf("no target device set")
	}
	if p.ESPSizeMiB == 0 {
		p.ESPSizeMiB = constants.DefaultESPSizeMiB
	}
	if p.RootSizeMiB == 0 {
		p.RootSizeMiB = constants.DefaultRootSizeMiB
	}
	if p.VolumeGroup == "" {
		p.VolumeGroup = constants.DefaultVolumeGroup
	}
	if p.MapperName == "" {
		p.MapperName = constants.DefaultMapperName
	}
	if p.InstallRoot == "" {
		p.InstallRoot = constants.DefaultInstallRoot
	}
	if p.Filesystems.Root == "" {
		p.Filesystems.Root = constants.DefaultRootFs
	}
	if p.Filesystems.Home == "" {
		p.Filesystems.Home = constants.DefaultHomeFs
	}
	switch p.Home.Policy {
	case "":
		p.Home.Policy = HomeFullMinusReserve
		if p.Home.ReserveMiB == 0 {
			p.Home.ReserveMiB = constants.DefaultHomeReserveMiB
		}
	case HomeFull:
		p.Home.ReserveMiB = 0
	case HomeFullMinusReserve:
		if p.Home.ReserveMiB == 0 {
			p.Home.ReserveMiB = constants.DefaultHomeReserveMiB
		}
	default:
		return fmt.Errorf("unknown home sizing policy %q", p.Home.Policy)
	}
	if p.Passphrase.Source == "" {
		if p.Passphrase.Value != "" {
			p.Passphrase.Source = PassphraseLiteral
		} else {
			p.Passphrase.Source = PassphrasePlugin
		}
	}
	switch p.Passphrase.Source {
	case PassphraseLiteral, PassphraseEnv, PassphraseFile, PassphrasePlugin, PassphraseTPM:
	default:
		return fmt.Errorf("unknown passphrase source %q", p.Passphrase.Source)
	}
	if strings.Contains(p.VolumeGroup, "/") {
		return fmt.Errorf("volume group name %q must not contain slashes", p.VolumeGroup)
	}
	return nil
}

// Confirmed reports whether the plan carries the explicit erase confirmation,
// the token has to repeat the device path verbatim.
func (p *InstallPlan) Confirmed() bool {
	return p.ConfirmErase != "" && p.ConfirmErase == p.Device
}

// RootDevice is the root logical volume node.
func (p *InstallPlan) RootDevice() string {
	return filepath.Join("/dev", p.VolumeGroup, constants.RootVolume)
}

// HomeDevice is the home logical volume node.
func (p *InstallPlan) HomeDevice() string {
	return filepath.Join("/dev", p.VolumeGroup, constants.HomeVolume)
}

// MappedDevice is the decrypted view of the LUKS container.
func (p *InstallPlan) MappedDevice() string {
	return filepath.Join("/dev/mapper", p.MapperName)
}

// TableEntry is one descriptor of the partition table the partitioner writes.
// Byte offsets are exact, an EndByte of 0 means "to the end of the disk" until
// verification fills in the real value.
type TableEntry struct {
	Index     int           `yaml:"index" json:"index"`
	Role      PartitionRole `yaml:"role" json:"role"`
	StartByte uint64        `yaml:"start" json:"start"`
	EndByte   uint64        `yaml:"end" json:"end"`
	Flags     []string      `yaml:"flags,omitempty" json:"flags,omitempty"`
	Path      string        `yaml:"path,omitempty" json:"path,omitempty"`
	UUID      string        `yaml:"uuid,omitempty" json:"uuid,omitempty"`
}

// PartitionTable is the typed result of the partitioning stage.
type PartitionTable struct {
	Device  string       `yaml:"device" json:"device"`
	Label   string       `yaml:"label" json:"label"`
	Entries []TableEntry `yaml:"entries" json:"entries"`
}

// ESP returns the EFI system partition entry, nil when absent.
func (t *PartitionTable) ESP() *TableEntry {
	return t.byRole(RoleESP)
}

// LVM returns the encrypted container partition entry, nil when absent.
func (t *PartitionTable) LVM() *TableEntry {
	return t.byRole(RoleLVM)
}

func (t *PartitionTable) byRole(role PartitionRole) *TableEntry {
	for i := range t.Entries {
		if t.Entries[i].Role == role {
			return &t.Entries[i]
		}
	}
	return nil
}

// Validate enforces the layout contract: exactly two entries, the ESP first
// with the boot flag, the container second starting where the ESP ends.
func (t *PartitionTable) Validate() error {
	if len(t.Entries) != 2 {
		return fmt.Errorf("partition table on %s has %d entries, want 2", t.Device, len(t.Entries))
	}
	esp, lvm := t.Entries[0], t.Entries[1]
	if esp.Role != RoleESP || esp.Index != 1 {
		return fmt.Errorf("first partition on %s is not the ESP", t.Device)
	}
	if lvm.Role != RoleLVM || lvm.Index != 2 {
		return fmt.Errorf("second partition on %s is not the LVM container", t.Device)
	}
	if !hasFlag(esp.Flags, constants.BootFlag) && !hasFlag(esp.Flags, constants.ESPFlag) {
		return fmt.Errorf("ESP on %s misses the boot flag", t.Device)
	}
	if esp.StartByte >= lvm.StartByte {
		return fmt.Errorf("ESP does not precede the LVM container on %s", t.Device)
	}
	if esp.EndByte != 0 && esp.EndByte > lvm.StartByte {
		return fmt.Errorf("partitions on %s overlap", t.Device)
	}
	return nil
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}

// EncryptedVolume ties the raw container partition to its mapper name. It
// exists only between a successful open and the close.
type EncryptedVolume struct {
	Device     string `yaml:"device" json:"device"`
	MapperName string `yaml:"mapper" json:"mapper"`
	UUID       string `yaml:"uuid,omitempty" json:"uuid,omitempty"`
}

// MappedPath is the device node of the decrypted view.
func (v *EncryptedVolume) MappedPath() string {
	return filepath.Join("/dev/mapper", v.MapperName)
}

// LogicalVolume is one volume inside a group, sized in extents.
type LogicalVolume struct {
	Name        string `yaml:"name" json:"name"`
	VolumeGroup string `yaml:"vg" json:"vg"`
	Extents     uint64 `yaml:"extents" json:"extents"`
	FS          string `yaml:"fs,omitempty" json:"fs,omitempty"`
}

// Path is the node udev exposes for the volume.
func (l *LogicalVolume) Path() string {
	return filepath.Join("/dev", l.VolumeGroup, l.Name)
}

// VolumeGroup mirrors the state of the group created over the mapped device.
type VolumeGroup struct {
	Name         string          `yaml:"name" json:"name"`
	PhysicalVol  string          `yaml:"pv" json:"pv"`
	ExtentSize   uint64          `yaml:"extent_size" json:"extent_size"`
	TotalExtents uint64          `yaml:"total_extents" json:"total_extents"`
	FreeExtents  uint64          `yaml:"free_extents" json:"free_extents"`
	Volumes      []LogicalVolume `yaml:"volumes,omitempty" json:"volumes,omitempty"`
}

// MountPoint is one planned mount, target relative to the installation root.
type MountPoint struct {
	Source  string   `yaml:"source" json:"source"`
	Target  string   `yaml:"target" json:"target"`
	FSType  string   `yaml:"fstype,omitempty" json:"fstype,omitempty"`
	Options []string `yaml:"options,omitempty" json:"options,omitempty"`
}

// MountPlan is the ordered mount sequence for the target hierarchy.
type MountPlan struct {
	Root   string       `yaml:"root" json:"root"`
	Points []MountPoint `yaml:"points" json:"points"`
}

// ByMountOrder returns the points sorted so parents come before children,
// plain string order on the target does that for absolute paths.
func (m *MountPlan) ByMountOrder() []MountPoint {
	points := make([]MountPoint, len(m.Points))
	copy(points, m.Points)
	sort.Slice(points, func(i, j int) bool { return points[i].Target < points[j].Target })
	return points
}

// ByUnmountOrder returns the points children-first for tear down.
func (m *MountPlan) ByUnmountOrder() []MountPoint {
	points := m.ByMountOrder()
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points
}

// NewMountPlan derives the canonical hierarchy from the plan and the
// partition table: root volume on /, the ESP on /boot, home on /home.
func NewMountPlan(p *InstallPlan, table *PartitionTable) MountPlan {
	esp := table.ESP()
	espPath := ""
	if esp != nil {
		espPath = esp.Path
	}
	return MountPlan{
		Root: p.InstallRoot,
		Points: []MountPoint{
			{Source: p.RootDevice(), Target: "/", FSType: p.Filesystems.Root},
			{Source: espPath, Target: constants.BootDir, FSType: constants.ESPFs},
			{Source: p.HomeDevice(), Target: constants.HomeDir, FSType: p.Filesystems.Home},
		},
	}
}
