package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netgen-allocation/internal/auth"
)

var inputTables = map[string]string{
	"generators": `plant_id_eia,generator_id,report_date,prime_mover_code,capacity_mw,energy_source_code_1
50307,GEN1,2018-01-01,ST,7.5,NG
50307,GEN2,2018-01-01,ST,2.5,NG
`,
	"generation": `plant_id_eia,generator_id,report_date,net_generation_mwh
50307,GEN1,2018-01-01,14
50307,GEN2,2018-01-01,1
`,
	"generation_fuel": `plant_id_eia,prime_mover_code,energy_source_code,report_date,net_generation_mwh,fuel_consumed_mmbtu
50307,ST,NG,2018-01-01,15,100000
`,
}

func writeInputs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range inputTables {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".csv"), []byte(content), 0o600))
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunCommand(t *testing.T) {
	input := writeInputs(t)
	out := t.TempDir()

	stdout, err := execute(t, "run", "--input", input, "--out", out, "--year", "2018", "--job-date", "2019-03-04")
	require.NoError(t, err)

	var result struct {
		ReportID string `json:"report_id"`
		Location string `json:"location"`
		Summary  struct {
			AllocatedRows int `json:"allocated_rows"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.Equal(t, "report-alloc-2018-20190304", result.ReportID)
	assert.Equal(t, 2, result.Summary.AllocatedRows)
	assert.True(t, strings.HasPrefix(result.Location, out))
	_, err = os.Stat(result.Location)
	assert.NoError(t, err)
}

func TestRunCommandRejectsYear(t *testing.T) {
	_, err := execute(t, "run", "--input", writeInputs(t), "--out", t.TempDir(), "--year", "12")
	require.Error(t, err)
}

func TestValidateCommand(t *testing.T) {
	stdout, err := execute(t, "validate", "--input", writeInputs(t))
	require.NoError(t, err)

	var counts map[string]int
	require.NoError(t, json.Unmarshal([]byte(stdout), &counts))
	assert.Equal(t, 2, counts["generators"])
	assert.Equal(t, 1, counts["generation_fuel"])
	assert.Equal(t, 0, counts["boiler_fuel"])
}

func TestTokenCommand(t *testing.T) {
	stdout, err := execute(t, "token", "--secret", "s3cret", "--role", "admin", "--plants", "50307")
	require.NoError(t, err)

	claims, err := auth.ParseJWT(strings.TrimSpace(stdout), []byte("s3cret"))
	require.NoError(t, err)
	assert.Equal(t, string(auth.RoleAdmin), claims.Role)
	assert.Equal(t, []int{50307}, claims.PlantIDs)

	_, err = execute(t, "token", "--secret", "s3cret", "--role", "owner")
	require.Error(t, err)
}
