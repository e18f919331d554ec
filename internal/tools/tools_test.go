package tools

import (
	"strings"
	"testing"
)

func TestBuiltinCatalog(t *testing.T) {
	r := Builtin()

	names := r.Names()
	if len(names) != 12 {
		t.Fatalf("got %d tools, want 12: %v", len(names), names)
	}

	wantTemplates := map[string]int{
		"create_organization": 35,
		"create_credential":   36,
		"list_organizations":  37,
		"list_users":          38,
		"create_user":         39,
		"create_inventory":    40,
		"list_inventories":    41,
		"list_credentials":    42,
		"create_project":      43,
		"list_projects":       46,
		"create_job_template": 48,
		"list_job_templates":  51,
	}
	for name, tmpl := range wantTemplates {
		s, ok := r.Get(name)
		if !ok {
			t.Errorf("missing tool %s", name)
			continue
		}
		if s.TemplateID != tmpl {
			t.Errorf("%s template = %d, want %d", name, s.TemplateID, tmpl)
		}
	}

	if _, ok := r.Get("delete_everything"); ok {
		t.Error("unknown tool resolved")
	}

	s, _ := r.Get("create_organization")
	if got := s.RequiredArgs(); len(got) != 1 || got[0] != "org_name" {
		t.Errorf("create_organization required args = %v", got)
	}
	if s.Kind != KindWrite {
		t.Errorf("create_organization kind = %v", s.Kind)
	}
	if s, _ := r.Get("list_projects"); s.Kind != KindRead || len(s.Args) != 0 {
		t.Errorf("list_projects should be a no-arg read tool")
	}
}

func TestDescribeMentionsEveryTool(t *testing.T) {
	text := Builtin().Describe()
	for _, name := range Builtin().Names() {
		if !strings.Contains(text, name) {
			t.Errorf("catalog text missing %s", name)
		}
	}
	if !strings.Contains(text, "org_name (string, required)") {
		t.Errorf("catalog text missing argument line:\n%s", text)
	}
}

func TestValidateFillsDefaults(t *testing.T) {
	s, _ := Builtin().Get("create_user")
	got, err := Validate(s, map[string]any{
		"user_username": "alice",
		"user_password": "pw",
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got["user_is_superuser"] != false {
		t.Errorf("default not filled: %v", got["user_is_superuser"])
	}
	if got["user_email"] != "" {
		t.Errorf("string default = %v", got["user_email"])
	}
}

func TestValidateMissingRequired(t *testing.T) {
	s, _ := Builtin().Get("create_credential")
	_, err := Validate(s, map[string]any{"credential_name": "c1"})
	if err == nil {
		t.Fatal("expected error")
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("got %T", err)
	}
	if ve.Tool != "create_credential" {
		t.Errorf("Tool = %q", ve.Tool)
	}
}

func TestValidateCoercion(t *testing.T) {
	s, _ := Builtin().Get("create_job_template")
	base := map[string]any{
		"job_template_name":      "deploy",
		"job_template_job_type":  "run",
		"job_template_inventory": "prod",
		"job_template_project":   "infra",
		"job_template_playbook":  "site.yml",
	}

	in := map[string]any{"job_template_verbosity": "3", "job_template_ask_limit_on_launch": "true"}
	for k, v := range base {
		in[k] = v
	}
	got, err := Validate(s, in)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got["job_template_verbosity"] != 3 {
		t.Errorf("verbosity = %v (%T)", got["job_template_verbosity"], got["job_template_verbosity"])
	}
	if got["job_template_ask_limit_on_launch"] != true {
		t.Errorf("bool coercion failed: %v", got["job_template_ask_limit_on_launch"])
	}

	in["job_template_verbosity"] = "high"
	if _, err := Validate(s, in); err == nil {
		t.Error("expected coercion failure for non-numeric verbosity")
	}
}

func TestValidateDropsUnknownExtras(t *testing.T) {
	s, _ := Builtin().Get("create_organization")
	got, err := Validate(s, map[string]any{
		"org_name": "Eng",
		"comment":  "planner padding",
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if _, ok := got["comment"]; ok {
		t.Error("unknown extra survived")
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry([]Schema{
		{Name: "a", TemplateID: 1},
		{Name: "a", TemplateID: 2},
	})
	if err == nil {
		t.Error("expected duplicate error")
	}
}
