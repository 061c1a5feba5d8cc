//go:build windows

// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package keystore

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/windows"
)

// Well-known trustees that must not be granted access to a signing key
var broadTrustees = map[string]string{
	"WD":           "Everyone",
	"S-1-1-0":      "Everyone",
	"BU":           "BUILTIN\\Users",
	"S-1-5-32-545": "BUILTIN\\Users",
	"AU":           "Authenticated Users",
	"S-1-5-11":     "Authenticated Users",
}

// checkOpenFilePermissions inspects the DACL of the open key file. NTFS does
// not allow replacing a file that is held open, so looking it up by name is
// safe here.
func checkOpenFilePermissions(f *os.File) error {
	sd, err := windows.GetNamedSecurityInfo(
		f.Name(),
		windows.SE_FILE_OBJECT,
		windows.DACL_SECURITY_INFORMATION,
	)
	if err != nil {
		return fmt.Errorf("failed to read ACL of %q: %w", f.Name(), err)
	}
	return checkDACL(f.Name(), sd.String())
}

// checkDACL walks the allow ACEs of an SDDL string
func checkDACL(path string, sddl string) error {
	_, dacl, found := strings.Cut(sddl, "D:")
	if !found {
		return fmt.Errorf(
			"signing key %q has no DACL: %w",
			path,
			ErrInsecureFileMode,
		)
	}
	dacl, _, _ = strings.Cut(dacl, "S:")
	for _, ace := range strings.Split(dacl, "(") {
		ace, _, _ = strings.Cut(ace, ")")
		// type;flags;rights;object;inherit;trustee
		fields := strings.Split(ace, ";")
		if len(fields) < 6 || fields[0] != "A" {
			continue
		}
		if name, ok := broadTrustees[fields[5]]; ok {
			return fmt.Errorf(
				"signing key %q grants access to %s: %w",
				path,
				name,
				ErrInsecureFileMode,
			)
		}
	}
	return nil
}
