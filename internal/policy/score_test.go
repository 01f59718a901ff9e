package policy

import (
	"math"
	"testing"

	"gopkg.in/yaml.v3"
)

func doc(stmts ...Statement) Document {
	return Document{Version: "2012-10-17", Statement: stmts}
}

func allow(actions, resources []string) Statement {
	return Statement{Effect: "Allow", Action: actions, Resource: resources}
}

func TestScoreNoDocuments(t *testing.T) {
	if s := Score(nil); s != 100 {
		t.Fatalf("expected 100, got %v", s)
	}
}

func TestScoreOnlyDenyStatements(t *testing.T) {
	d := doc(Statement{Effect: "Deny", Action: StringList{"*"}, Resource: StringList{"*"}})
	if s := Score([]Document{d}); s != 100 {
		t.Fatalf("deny-only policy should score 100, got %v", s)
	}
}

func TestScoreWildcardEverything(t *testing.T) {
	d := doc(allow([]string{"s3:*"}, []string{"*"}))
	s := Score([]Document{d})
	if s != 85 {
		t.Fatalf("expected 85, got %v", s)
	}
	if s >= 90 {
		t.Fatal("wildcard action and resource must score below 90")
	}
}

func TestScoreQualifiedBonus(t *testing.T) {
	d := doc(
		allow([]string{"s3:GetObject"}, []string{"arn:aws:s3:::bucket/key"}),
		allow([]string{"s3:*"}, []string{"*"}),
	)
	// 100 - 5 - 10 + 10*(1/2)
	if s := Score([]Document{d}); s != 90 {
		t.Fatalf("expected 90, got %v", s)
	}
}

func TestScoreClamped(t *testing.T) {
	var stmts []Statement
	for i := 0; i < 20; i++ {
		stmts = append(stmts, allow([]string{"*"}, []string{"*"}))
	}
	if s := Score([]Document{doc(stmts...)}); s != 0 {
		t.Fatalf("expected clamp to 0, got %v", s)
	}
}

func TestScoreDeterministic(t *testing.T) {
	docs := []Document{doc(allow([]string{"ec2:Describe*", "s3:GetObject"}, []string{"arn:aws:s3:::b/*"}))}
	a, b := Score(docs), Score(docs)
	if a != b || math.IsNaN(a) {
		t.Fatalf("non-deterministic score %v vs %v", a, b)
	}
}

func TestParseSingleStatementAndStringFields(t *testing.T) {
	d, err := Parse("inline", []byte(`{"Version":"2012-10-17","Statement":{"Effect":"Allow","Action":"s3:*","Resource":"*"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Statement) != 1 || d.Statement[0].Action[0] != "s3:*" || d.Name != "inline" {
		t.Fatalf("unexpected document: %+v", d)
	}
}

func TestParseListFields(t *testing.T) {
	d, err := Parse("p", []byte(`{"Statement":[{"Effect":"Allow","Action":["a:B","c:*"],"Resource":["arn:x:y"]}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Statement[0].Action) != 2 {
		t.Fatalf("unexpected actions: %v", d.Statement[0].Action)
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := Parse("bad", []byte(`{"Statement":[{"Action":42}]}`)); err == nil {
		t.Fatal("expected error for numeric action")
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name  string
		docs  []Document
		scope string
	}{
		{"broad", []Document{doc(allow([]string{"s3:*"}, []string{"*"}))}, ScopeBroad},
		{"moderate", []Document{doc(allow([]string{"s3:GetObject"}, []string{"arn:aws:s3:::b/*"}))}, ScopeModerate},
		{"narrow", []Document{doc(allow([]string{"s3:GetObject"}, []string{"arn:aws:s3:::b/k"}))}, ScopeNarrow},
		{"empty", nil, ScopeNarrow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if f := Summarize(tt.docs); f.ResourceScopeWideness != tt.scope {
				t.Fatalf("scope = %s, want %s", f.ResourceScopeWideness, tt.scope)
			}
		})
	}
}

func TestSummarizeCounts(t *testing.T) {
	a := doc(allow([]string{"s3:*", "s3:GetObject"}, []string{"*"}), Statement{Effect: "Deny", Action: StringList{"iam:*"}})
	a.Name = "AppPolicy"
	b := doc(allow([]string{"s3:GetObject", "ec2:Describe*"}, []string{"arn:aws:ec2:::x"}))
	f := Summarize([]Document{a, b})
	if f.ActionCount != 3 {
		t.Errorf("action count = %d, want 3", f.ActionCount)
	}
	if len(f.WildcardActions) != 2 || f.WildcardActions[0] != "ec2:Describe*" {
		t.Errorf("wildcard actions = %v", f.WildcardActions)
	}
	if f.TotalStatements != 3 || f.WildcardResourceStatements != 1 {
		t.Errorf("unexpected statement counts: %+v", f)
	}
	if len(f.AttachedPolicies) != 1 || f.AttachedPolicies[0] != "AppPolicy" {
		t.Errorf("attached = %v", f.AttachedPolicies)
	}
	if f.LeastPrivilegeScore != Score([]Document{a, b}) {
		t.Error("footprint must carry the canonical score")
	}
}

func TestDocumentYAML(t *testing.T) {
	src := `
name: AppPolicy
Version: "2012-10-17"
Statement:
  Effect: Allow
  Action: s3:*
  Resource: "*"
`
	var d Document
	if err := yaml.Unmarshal([]byte(src), &d); err != nil {
		t.Fatal(err)
	}
	if d.Name != "AppPolicy" || len(d.Statement) != 1 || d.Statement[0].Resource[0] != "*" {
		t.Fatalf("unexpected document: %+v", d)
	}
	if Score([]Document{d}) != 85 {
		t.Fatalf("score = %v", Score([]Document{d}))
	}
}
