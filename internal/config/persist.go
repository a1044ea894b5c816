package config

import (
	"bytes"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// PersistRefreshToken rewrites the refresh-token entry of the client.yaml at
// path. The document is edited as a node tree so comments, key order and every
// other value survive. The file is written with mode 0600.
func PersistRefreshToken(path, token string) error {
	if path == "" {
		return ErrPersist.Msg("client configuration path cannot be empty")
	}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return ErrPersist.MsgErr("unable to read "+path, err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return ErrPersist.MsgErr("unable to parse "+path, err)
	}
	if doc.Kind != yaml.DocumentNode {
		doc = yaml.Node{Kind: yaml.DocumentNode}
	}
	if len(doc.Content) == 0 {
		doc.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return ErrPersist.Msg(path + " is not a mapping")
	}

	providerConfig := childMapping(childMapping(childMapping(root, "authentication"), "auth-provider"), "config")
	setScalar(providerConfig, "refresh-token", token)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return ErrPersist.MsgErr("unable to generate configuration", err)
	}
	if err := enc.Close(); err != nil {
		return ErrPersist.MsgErr("unable to generate configuration", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return ErrPersist.MsgErr("unable to create config directory", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), os.FileMode(0600)); err != nil {
		return ErrPersist.MsgErr("unable to write "+tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return ErrPersist.MsgErr("unable to replace "+path, err)
	}
	return nil
}

// childMapping returns the mapping stored under key in m, creating it or
// replacing a non-mapping value.
func childMapping(m *yaml.Node, key string) *yaml.Node {
	if v := lookupKey(m, key); v != nil {
		if v.Kind != yaml.MappingNode {
			*v = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", HeadComment: v.HeadComment, LineComment: v.LineComment}
		}
		return v
	}
	v := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, v)
	return v
}

func setScalar(m *yaml.Node, key, value string) {
	if v := lookupKey(m, key); v != nil {
		v.Kind = yaml.ScalarNode
		v.Tag = "!!str"
		v.Value = value
		v.Style = 0
		v.Content = nil
		v.Alias = nil
		return
	}
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value})
}

func lookupKey(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}
