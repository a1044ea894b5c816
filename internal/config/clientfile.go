package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ClientFileName is the file written by `flightctl login`.
const ClientFileName = "client.yaml"

// DefaultClientFilePath returns ~/.config/flightctl/client.yaml.
func DefaultClientFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "flightctl", ClientFileName), nil
}

// clientFile mirrors the subset of the flightctl CLI configuration we read.
type clientFile struct {
	Service struct {
		Server             string `yaml:"server"`
		InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
	} `yaml:"service"`
	Authentication struct {
		AuthProvider struct {
			Name   string `yaml:"name"`
			Config struct {
				Server               string `yaml:"server"`
				ClientID             string `yaml:"client-id"`
				RefreshToken         string `yaml:"refresh-token"`
				CertificateAuthority string `yaml:"certificate-authority"`
			} `yaml:"config"`
		} `yaml:"auth-provider"`
	} `yaml:"authentication"`
}

// readClientFile parses the client configuration at path. A missing file is not
// an error and yields found == false.
func readClientFile(path string) (cf clientFile, found bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cf, false, nil
		}
		return cf, false, ErrClientFile.MsgErr("unable to read "+path, err)
	}
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return cf, false, ErrClientFile.MsgErr("unable to parse "+path, err)
	}
	return cf, true, nil
}

func trimURL(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "/")
}
