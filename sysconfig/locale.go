package sysconfig

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Screamnox/sarchura/chroot"
	"github.com/Screamnox/sarchura/constants"
	"github.com/Screamnox/sarchura/types"
	"github.com/Screamnox/sarchura/types/config"
	"github.com/joho/godotenv"
)

// applyIdentity writes hostname, hosts, locale, console and timezone into
// the target. Env-format files go through godotenv so quoting stays correct
// whatever the values contain.
func applyIdentity(c *config.Config, targetRoot string, system *types.SystemConfig, root *chroot.Chroot) error {
	hostname := system.Hostname
	if hostname == "" {
		hostname = "sarchura"
	}

	if err := c.Fs.WriteFile(filepath.Join(targetRoot, "etc", "hostname"),
		[]byte(hostname+"\n"), constants.FilePerm); err != nil {
		return err
	}

	hosts := strings.Join([]string{
		"127.0.0.1\tlocalhost",
		"::1\t\tlocalhost",
		fmt.Sprintf("127.0.1.1\t%s.localdomain\t%s", hostname, hostname),
	}, "\n")
	if err := c.Fs.WriteFile(filepath.Join(targetRoot, "etc", "hosts"),
		[]byte(hosts+"\n"), constants.FilePerm); err != nil {
		return err
	}

	locale := system.Locale
	if locale == "" {
		locale = "en_US.UTF-8"
	}

	localeConf, err := godotenv.Marshal(map[string]string{"LANG": locale})
	if err != nil {
		return err
	}
	if err := c.Fs.WriteFile(filepath.Join(targetRoot, "etc", "locale.conf"),
		[]byte(localeConf+"\n"), constants.FilePerm); err != nil {
		return err
	}

	if err := enableLocale(c, targetRoot, locale); err != nil {
		return err
	}
	if _, err := root.Run("locale-gen"); err != nil {
		return err
	}

	if system.Keymap != "" {
		vconsole, err := godotenv.Marshal(map[string]string{"KEYMAP": system.Keymap})
		if err != nil {
			return err
		}
		if err := c.Fs.WriteFile(filepath.Join(targetRoot, "etc", "vconsole.conf"),
			[]byte(vconsole+"\n"), constants.FilePerm); err != nil {
			return err
		}
	}

	if system.Timezone != "" {
		zone := filepath.Join("/usr/share/zoneinfo", system.Timezone)
		if _, err := root.Run("ln", "-sf", zone, "/etc/localtime"); err != nil {
			return err
		}
		if _, err := root.Run("hwclock", "--systohc"); err != nil {
			c.Logger.Logger.Warn().Err(err).Msg("hwclock failed, clock may drift until first NTP sync")
		}
	}

	return nil
}

// enableLocale uncomments the wanted locale in locale.gen, appending it when
// the template does not list it at all.
func enableLocale(c *config.Config, targetRoot, locale string) error {
	path := filepath.Join(targetRoot, "etc", "locale.gen")
	line := locale + " UTF-8"

	data, err := c.Fs.ReadFile(path)
	if err != nil {
		return c.Fs.WriteFile(path, []byte(line+"\n"), constants.FilePerm)
	}

	lines := strings.Split(string(data), "\n")
	found := false
	for i, l := range lines {
		trimmed := strings.TrimLeft(l, "# ")
		if strings.HasPrefix(trimmed, locale+" ") || trimmed == locale {
			lines[i] = line
			found = true
			break
		}
	}
	if !found {
		lines = append(lines, line)
	}
	return c.Fs.WriteFile(path, []byte(strings.Join(lines, "\n")), constants.FilePerm)
}
