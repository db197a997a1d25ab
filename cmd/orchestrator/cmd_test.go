package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const archetype = `<HouseFile>
        <Weather depthOfFrost="1.2192" heatingDegreeDay="4500" library="Wth110.dir">
            <Region code="7">
                <English>ONTARIO</English>
                <French>ONTARIO</French>
            </Region>
            <Location code="42">
                <English>TIMMINS</English>
                <French>TIMMINS</French>
            </Location>
        </Weather>
</HouseFile>
`

func writeTree(t *testing.T, files map[string]string) {
	t.Helper()
	for path, content := range files {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func setup(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	csv := filepath.Join(root, "csv")
	library := filepath.Join(root, "library")
	files := map[string]string{
		filepath.Join(csv, "communities-number-of-houses.csv"):                       "Old Crow,pre-2000-single,2,,,,,,\n",
		filepath.Join(csv, "train-test communities hdd and weather locations.csv"): "Community,HDD,WEATHER\nOld Crow,10000,OLD CROW\n",
		filepath.Join(csv, "location_code.csv"):                                      "OLD CROW,77\n",
		filepath.Join(csv, "weather_details.csv"):                                    "Location,HDD,Library\nOld Crow,9999,Wth2020.dir\n",
	}
	for i := 1; i <= 4; i++ {
		files[filepath.Join(library, fmt.Sprintf("pre-2000-single_%d.H2K", i))] = archetype
	}
	writeTree(t, files)

	cfgPath := filepath.Join(root, "orchestrator.yaml")
	yaml := fmt.Sprintf("paths:\n  csv_dir: %q\n  library_dir: %q\n  communities_dir: %q\nworkers: 1\nlogging:\n  level: ERROR\n",
		csv, library, filepath.Join(root, "communities"))
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	return root, cfgPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSelectCommand(t *testing.T) {
	_, cfgPath := setup(t)

	out, err := execute(t, "select", "Old Crow", "--config", cfgPath, "--seed", "abc")
	if err != nil {
		t.Fatalf("select: %v\n%s", err, out)
	}
	if cfg.Selection.Seed != "abc" || cfg.Workers != 1 {
		t.Errorf("config = %+v", cfg.Selection)
	}
	if !strings.Contains(out, "Seed: abc") || !strings.Contains(out, "3 archetypes selected") {
		t.Errorf("output = %s", out)
	}

	if _, err := execute(t, "select", "Atlantis", "--config", cfgPath); err == nil {
		t.Error("expected unknown community error")
	}
}

func TestWeatherCommand(t *testing.T) {
	root, cfgPath := setup(t)
	target := filepath.Join(root, "staged")
	writeTree(t, map[string]string{filepath.Join(target, "a.H2K"): archetype})

	out, err := execute(t, "weather", "Old Crow", target, "--config", cfgPath)
	if err != nil {
		t.Fatalf("weather: %v\n%s", err, out)
	}
	if !strings.Contains(out, "changed: 1, unchanged: 0") {
		t.Errorf("output = %s", out)
	}
	data, _ := os.ReadFile(filepath.Join(target, "a.H2K"))
	if !strings.Contains(string(data), "OLD CROW") {
		t.Error("archetype not retargeted")
	}

	out, err = execute(t, "weather", "Old Crow", target, "--config", cfgPath)
	if err != nil || !strings.Contains(out, "changed: 0, unchanged: 1") {
		t.Errorf("second pass = %s, %v", out, err)
	}
}
