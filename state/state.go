// Package state reports what the installer runs on: machine identity, OS,
// firmware mode and the disks it could provision. The output is YAML and
// queryable with jq expressions.
package state

import (
	"fmt"

	"github.com/Screamnox/sarchura/block"
	"github.com/Screamnox/sarchura/constants"
	"github.com/Screamnox/sarchura/efi"
	"github.com/Screamnox/sarchura/types"
	"github.com/Screamnox/sarchura/utils"
	"github.com/denisbrodbeck/machineid"
	vfs "github.com/twpayne/go-vfs/v4"
	"github.com/zcalusic/sysinfo"
	"gopkg.in/yaml.v3"
)

// PartitionInfo is one partition as the host sees it.
type PartitionInfo struct {
	Name       string   `yaml:"name" json:"name"`
	Path       string   `yaml:"path,omitempty" json:"path,omitempty"`
	SizeBytes  uint64   `yaml:"size,omitempty" json:"size,omitempty"`
	FSType     string   `yaml:"fstype,omitempty" json:"fstype,omitempty"`
	FSLabel    string   `yaml:"label,omitempty" json:"label,omitempty"`
	MountPoint string   `yaml:"mountpoint,omitempty" json:"mountpoint,omitempty"`
	UUID       string   `yaml:"uuid,omitempty" json:"uuid,omitempty"`
	Mounted    bool     `yaml:"mounted" json:"mounted"`
	Flags      []string `yaml:"flags,omitempty" json:"flags,omitempty"`
}

// DiskInfo is one candidate target disk with its partitions.
type DiskInfo struct {
	Name       string          `yaml:"name" json:"name"`
	Device     string          `yaml:"device" json:"device"`
	SizeBytes  uint64          `yaml:"size" json:"size"`
	Partitions []PartitionInfo `yaml:"partitions,omitempty" json:"partitions,omitempty"`
}

// OSInfo is the subset of os-release worth reporting.
type OSInfo struct {
	ID         string `yaml:"id,omitempty" json:"id,omitempty"`
	Name       string `yaml:"name,omitempty" json:"name,omitempty"`
	PrettyName string `yaml:"pretty_name,omitempty" json:"pretty_name,omitempty"`
}

// HostInfo describes the machine itself.
type HostInfo struct {
	Hostname string `yaml:"hostname,omitempty" json:"hostname,omitempty"`
	Kernel   string `yaml:"kernel,omitempty" json:"kernel,omitempty"`
	Arch     string `yaml:"arch,omitempty" json:"arch,omitempty"`
	Vendor   string `yaml:"vendor,omitempty" json:"vendor,omitempty"`
	Product  string `yaml:"product,omitempty" json:"product,omitempty"`
}

// Runtime is the full host snapshot.
type Runtime struct {
	UUID       string     `yaml:"uuid,omitempty" json:"uuid,omitempty"`
	OS         OSInfo     `yaml:"os,omitempty" json:"os,omitempty"`
	Host       HostInfo   `yaml:"host,omitempty" json:"host,omitempty"`
	Firmware   string     `yaml:"firmware" json:"firmware"`
	SecureBoot bool       `yaml:"secureboot" json:"secureboot"`
	Disks      []DiskInfo `yaml:"disks,omitempty" json:"disks,omitempty"`
}

// NewRuntime inspects the host. Pieces that cannot be read are left empty
// rather than failing the whole snapshot, an installer on exotic hardware
// still needs to report what it can.
func NewRuntime(logger *types.SarchuraLogger) (Runtime, error) {
	runtime := Runtime{Firmware: "bios"}

	if id, err := machineid.ID(); err == nil {
		runtime.UUID = id
	} else {
		logger.Logger.Debug().Err(err).Msg("No machine id available")
	}

	if name, err := utils.OSRelease("ID"); err == nil {
		runtime.OS.ID = name
	}
	if name, err := utils.OSRelease("NAME"); err == nil {
		runtime.OS.Name = name
	}
	if pretty, err := utils.OSRelease("PRETTY_NAME"); err == nil {
		runtime.OS.PrettyName = pretty
	}

	var si sysinfo.SysInfo
	si.GetSysInfo()
	runtime.Host = HostInfo{
		Hostname: si.Node.Hostname,
		Kernel:   si.Kernel.Release,
		Arch:     si.Kernel.Architecture,
		Vendor:   si.Product.Vendor,
		Product:  si.Product.Name,
	}

	if efi.IsUEFIBoot(vfs.OSFS) {
		runtime.Firmware = constants.EFI
		runtime.SecureBoot = efi.IsSecureBoot()
	}

	paths := block.NewPaths("")
	for _, disk := range block.GetDisks(paths, logger) {
		info := DiskInfo{
			Name:      disk.Name,
			Device:    "/dev/" + disk.Name,
			SizeBytes: disk.SizeBytes,
		}
		for _, part := range disk.Partitions {
			info.Partitions = append(info.Partitions, PartitionInfo{
				Name:       part.Name,
				Path:       part.Path,
				SizeBytes:  uint64(part.Size),
				FSType:     part.FS,
				FSLabel:    part.FilesystemLabel,
				MountPoint: part.MountPoint,
				UUID:       part.UUID,
				Mounted:    part.MountPoint != "",
			})
		}
		runtime.Disks = append(runtime.Disks, info)
	}

	return runtime, nil
}

// String renders the snapshot as YAML.
func (r Runtime) String() string {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Sprintf("failed marshalling runtime: %s", err.Error())
	}
	return string(data)
}
