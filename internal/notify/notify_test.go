package notify

import "testing"

type recorder struct {
	infos, successes, errors []string
}

func (r *recorder) Info(title, message string)  { r.infos = append(r.infos, title+": "+message) }
func (r *recorder) Success(message string)      { r.successes = append(r.successes, message) }
func (r *recorder) Error(title, message string) { r.errors = append(r.errors, title+": "+message) }

func TestRegistryFanOut(t *testing.T) {
	a := &recorder{}
	b := &recorder{}

	reg := NewRegistry()
	reg.Register(a)
	reg.Register(b)

	reg.Info("Task updated", "Jane updated \"Dishes\"")
	reg.Success("connected")
	reg.Error("Real-time Error", "boom")

	for _, r := range []*recorder{a, b} {
		if len(r.infos) != 1 || len(r.successes) != 1 || len(r.errors) != 1 {
			t.Errorf("sink missed notices: %+v", r)
		}
	}
	if a.infos[0] != "Task updated: Jane updated \"Dishes\"" {
		t.Errorf("unexpected info: %s", a.infos[0])
	}
}

func TestEmptyRegistryIsSafe(t *testing.T) {
	reg := NewRegistry()
	reg.Info("t", "m")
	reg.Success("m")
	reg.Error("t", "m")
}
