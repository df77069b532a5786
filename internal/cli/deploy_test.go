package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ignite/internal/ledger"
	"github.com/roach88/ignite/internal/testutil"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// writeArtifacts writes the test artifacts as <Contract>.json files.
func writeArtifacts(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, a := range testutil.Artifacts() {
		data, err := json.Marshal(a)
		require.NoError(t, err)
		writeFile(t, dir, name+".json", string(data))
	}
	return dir
}

type deployRun struct {
	format        string
	deploymentDir string
	params        string
	artifacts     string
	client        ledger.Client
	metricsAddr   string
}

// run executes the deploy command against the test ledger and returns its
// output.
func (r deployRun) run(t *testing.T) (string, error) {
	t.Helper()
	if r.format == "" {
		r.format = "json"
	}
	if r.client == nil {
		r.client = testutil.NewLedger()
	}
	opts := &DeployOptions{
		RootOptions:   &RootOptions{Format: r.format},
		DeploymentDir: r.deploymentDir,
		Params:        r.params,
		Artifacts:     r.artifacts,
		Config:        "testdata/fast.yaml",
		Accounts:      testutil.Accounts(),
		Client:        r.client,
		RunIDs:        testutil.FixedRunID("cli-run"),
		MetricsAddr:   r.metricsAddr,
	}
	out := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetContext(context.Background())

	err := runDeploy(opts, "testdata/token", cmd)
	return out.String(), err
}

// deployReport mirrors DeployReport with values decoded generically.
type deployReport struct {
	Status    string         `json:"status"`
	RunID     string         `json:"runId"`
	Values    map[string]any `json:"values"`
	Completed map[string]any `json:"completed"`
	Errors    []string       `json:"errors"`
}

type deployResponse struct {
	Status string       `json:"status"`
	Data   deployReport `json:"data"`
}

func decodeDeploy(t *testing.T, out string) deployReport {
	t.Helper()
	var resp deployResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func TestDeployCommand(t *testing.T) {
	out, err := deployRun{artifacts: writeArtifacts(t), params: "testdata/params.yaml"}.run(t)
	require.NoError(t, err)

	report := decodeDeploy(t, out)
	assert.Equal(t, "success", report.Status)
	assert.Equal(t, "cli-run", report.RunID)
	assert.Len(t, report.Completed, 4)
	assert.Contains(t, report.Values, "Token#Token")
	assert.EqualValues(t, 7, report.Values["Token#Balance"])
	assert.EqualValues(t, 7, report.Completed["Token#Minted"])
}

func TestDeployCommandText(t *testing.T) {
	out, err := deployRun{format: "text", artifacts: writeArtifacts(t)}.run(t)
	require.NoError(t, err)
	assert.Contains(t, out, "Deployment success (run cli-run)")
	assert.Contains(t, out, "Token#Minted")
}

func TestDeployCommandValidationFailure(t *testing.T) {
	out, err := deployRun{artifacts: t.TempDir()}.run(t)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	report := decodeDeploy(t, out)
	assert.Equal(t, "validation-failure", report.Status)
	assert.NotEmpty(t, report.Errors)
}

func TestDeployCommandMissingModule(t *testing.T) {
	opts := &DeployOptions{RootOptions: &RootOptions{Format: "text"}, Config: "testdata/fast.yaml"}
	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := runDeploy(opts, "testdata/nope", cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestDeployCommandBadParams(t *testing.T) {
	params := writeFile(t, t.TempDir(), "params.yaml", "Token:\n  supply: 1.5\n")
	_, err := deployRun{artifacts: writeArtifacts(t), params: params}.run(t)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "floats not allowed")
}

func TestDeployJournalThenInspect(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dev")
	artifacts := writeArtifacts(t)
	client := testutil.NewLedger()

	_, err := deployRun{deploymentDir: dir, artifacts: artifacts, client: client}.run(t)
	require.NoError(t, err)

	t.Run("status", func(t *testing.T) {
		out, err := execute(t, "--format", "json", "status", "--deployment-dir", dir)
		require.NoError(t, err)

		var resp struct {
			Data StatusReport `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.Equal(t, "Token", resp.Data.ModuleID)
		assert.EqualValues(t, 31337, resp.Data.ChainID)
		require.Len(t, resp.Data.Futures, 4)
		assert.Equal(t, "Token#Token", resp.Data.Futures[0].ID)
		for _, f := range resp.Data.Futures {
			assert.Equal(t, "completed", string(f.Status), f.ID)
		}
		assert.JSONEq(t, "7", string(resp.Data.Futures[2].Result))
	})

	t.Run("journal", func(t *testing.T) {
		out, err := execute(t, "--format", "json", "journal", "--deployment-dir", dir)
		require.NoError(t, err)

		var resp struct {
			Data JournalListing `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		require.NotEmpty(t, resp.Data.Entries)
		assert.EqualValues(t, 1, resp.Data.Entries[0].Seq)
		assert.Equal(t, "deployment-initialized", string(resp.Data.Entries[0].Type))
		for i, e := range resp.Data.Entries {
			assert.EqualValues(t, i+1, e.Seq)
		}
	})

	t.Run("wipe and resume", func(t *testing.T) {
		out, err := execute(t, "wipe", "--deployment-dir", dir, "Token#Mint")
		require.NoError(t, err)
		assert.Contains(t, out, "Token#Mint")
		assert.Contains(t, out, "Token#Minted")
		assert.Contains(t, out, "Token#Balance")

		out, err = deployRun{deploymentDir: dir, artifacts: artifacts, client: client}.run(t)
		require.NoError(t, err)
		report := decodeDeploy(t, out)
		assert.EqualValues(t, 14, report.Values["Token#Balance"])
	})

	t.Run("wipe unknown future", func(t *testing.T) {
		_, err := execute(t, "wipe", "--deployment-dir", dir, "Token#Nope")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})
}

func TestInspectMissingJournal(t *testing.T) {
	dir := t.TempDir()
	for _, args := range [][]string{
		{"status", "--deployment-dir", dir},
		{"journal", "--deployment-dir", dir},
		{"wipe", "--deployment-dir", dir, "Token#Mint"},
	} {
		_, err := execute(t, args...)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err), args[0])
	}
	_, err := os.Stat(filepath.Join(dir, "journal.db"))
	assert.True(t, os.IsNotExist(err))
}
