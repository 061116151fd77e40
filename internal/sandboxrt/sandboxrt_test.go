package sandboxrt

import "testing"

func TestBuildCommandDirectInterpreter(t *testing.T) {
	spec := Spec{Executor: "python3", ScriptPath: "/code/job-1/script.py"}
	cmd := buildCommand(spec)
	want := []string{"python3", "/code/job-1/script.py"}
	if len(cmd) != len(want) {
		t.Fatalf("unexpected command length: %v", cmd)
	}
	for i := range want {
		if cmd[i] != want[i] {
			t.Errorf("cmd[%d] = %q, want %q", i, cmd[i], want[i])
		}
	}
}

func TestBuildCommandShellTemplate(t *testing.T) {
	spec := Spec{Executor: "go run {{file}}", ScriptPath: "/code/job-2/script.go"}
	cmd := buildCommand(spec)
	if len(cmd) != 3 || cmd[0] != "sh" || cmd[1] != "-lc" {
		t.Fatalf("expected sh -lc wrapper, got %v", cmd)
	}
	if cmd[2] != "go run /code/job-2/script.go" {
		t.Errorf("unexpected rendered command: %q", cmd[2])
	}
}
