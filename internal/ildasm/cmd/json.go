package cmd

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Trazarw/dotnet-ildasm/internal/decoder"
	"github.com/Trazarw/dotnet-ildasm/internal/logging"
	"github.com/Trazarw/dotnet-ildasm/internal/metadata"
)

// JSONOutput is the machine-readable assembly summary used for
// regression testing against known binaries.
type JSONOutput struct {
	File     string       `json:"file"`
	Digest   string       `json:"digest"`
	Assembly JSONAssembly `json:"assembly"`
	Externs  []JSONExtern `json:"externs"`
	Modules  []JSONModule `json:"modules"`
}

type JSONAssembly struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	HashAlgorithm string `json:"hash_algorithm"`
}

type JSONExtern struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Token   string `json:"public_key_token,omitempty"`
}

type JSONModule struct {
	Name  string     `json:"name"`
	MVID  string     `json:"mvid"`
	Types []JSONType `json:"types"`
}

type JSONType struct {
	Name    string   `json:"name"`
	Methods []string `json:"methods"`
}

func runJSON(path string) error {
	logger := logging.NewLogger()
	defer logger.Close()

	asm, err := decoder.Decode(path, logger.Logger)
	if err != nil {
		return err
	}

	digest, err := fileDigest(path)
	if err != nil {
		return err
	}

	out := JSONOutput{
		File:   path,
		Digest: digest,
		Assembly: JSONAssembly{
			Name:          asm.Name,
			Version:       versionString(asm.Version),
			HashAlgorithm: fmt.Sprintf("0x%08x", asm.HashAlgorithm),
		},
	}

	for _, ref := range asm.References {
		ext := JSONExtern{
			Name:    ref.Name,
			Version: versionString(ref.Version),
		}
		if len(ref.PublicKeyToken) > 0 {
			ext.Token = fmt.Sprintf("%x", ref.PublicKeyToken)
		}
		out.Externs = append(out.Externs, ext)
	}

	for i := range asm.Modules {
		mod := &asm.Modules[i]
		jm := JSONModule{
			Name: mod.Name,
			MVID: mod.MVID.String(),
		}
		for _, t := range mod.Types {
			jt := JSONType{Name: t.FullName}
			for _, m := range t.Methods {
				jt.Methods = append(jt.Methods, m.Name)
			}
			jm.Types = append(jm.Types, jt)
		}
		out.Modules = append(out.Modules, jm)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %v", err)
	}
	fmt.Println(string(data))
	return nil
}

func versionString(v metadata.Version) string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Revision)
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}
