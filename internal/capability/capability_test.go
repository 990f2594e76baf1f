package capability

import "testing"

func TestDeriveSafePreset(t *testing.T) {
	ceiling := Ceiling{Shell: true, Write: true, Browser: true}
	_, effective := Derive(ceiling, Request{Preset: PresetSafe}, RoleMember, false)
	if effective != (Set{}) {
		t.Fatalf("safe preset should yield empty effective set, got %+v", effective)
	}
}

func TestDeriveStandardPreset(t *testing.T) {
	ceiling := Ceiling{Shell: true, Write: true, Browser: true}
	_, effective := Derive(ceiling, Request{Preset: PresetStandard}, RoleMember, false)
	if !effective.Write || effective.Shell || effective.Browser {
		t.Fatalf("standard preset should only grant write, got %+v", effective)
	}
}

func TestDerivePowerPresetBoundedByCeiling(t *testing.T) {
	ceiling := Ceiling{Shell: false, Write: true, Browser: true}
	_, effective := Derive(ceiling, Request{Preset: PresetPower}, RoleMember, false)
	if effective.Shell {
		t.Fatalf("ceiling must bound requested power preset, got shell=true")
	}
	if !effective.Write || !effective.Browser {
		t.Fatalf("expected write and browser granted within ceiling, got %+v", effective)
	}
}

func TestDeriveDangerousRequiresPrivilegedRole(t *testing.T) {
	ceiling := Ceiling{Dangerous: true}
	req := Request{Preset: PresetCustom, Dangerous: true}

	_, effective := Derive(ceiling, req, RoleMember, true)
	if effective.Dangerous {
		t.Fatalf("member role must not receive dangerous capability")
	}

	_, effective = Derive(ceiling, req, RoleAdmin, true)
	if !effective.Dangerous {
		t.Fatalf("admin role with custom preset, ceiling, and unsandboxed provider should get dangerous")
	}
}

func TestDeriveDangerousRequiresCustomPreset(t *testing.T) {
	ceiling := Ceiling{Dangerous: true, Shell: true, Write: true, Browser: true}
	req := Request{Preset: PresetPower}
	_, effective := Derive(ceiling, req, RoleOwner, true)
	if effective.Dangerous {
		t.Fatalf("dangerous must require preset=custom even for owner")
	}
}

func TestDeriveDangerousRequiresUnsandboxableProvider(t *testing.T) {
	ceiling := Ceiling{Dangerous: true}
	req := Request{Preset: PresetCustom, Dangerous: true}
	_, effective := Derive(ceiling, req, RoleOwner, false)
	if effective.Dangerous {
		t.Fatalf("dangerous must require provider.CanRunUnsandboxed")
	}
}

func TestDeriveEffectiveAlwaysSubsetOfCeiling(t *testing.T) {
	ceilings := []Ceiling{
		{},
		{Shell: true},
		{Write: true, Browser: true},
		{Shell: true, Write: true, Browser: true, Dangerous: true},
	}
	presets := []Preset{PresetSafe, PresetStandard, PresetPower, PresetCustom}
	roles := []Role{RoleMember, RoleAdmin, RoleOwner}

	for _, c := range ceilings {
		for _, p := range presets {
			for _, r := range roles {
				req := Request{Preset: p, Shell: true, Write: true, Browser: true, Dangerous: true}
				_, eff := Derive(c, req, r, true)
				if eff.Shell && !c.Shell {
					t.Errorf("shell escaped ceiling for %+v/%s/%s", c, p, r)
				}
				if eff.Write && !c.Write {
					t.Errorf("write escaped ceiling for %+v/%s/%s", c, p, r)
				}
				if eff.Browser && !c.Browser {
					t.Errorf("browser escaped ceiling for %+v/%s/%s", c, p, r)
				}
				if eff.Dangerous && r == RoleMember {
					t.Errorf("member received dangerous for %+v/%s", c, p)
				}
			}
		}
	}
}
