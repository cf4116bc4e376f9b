package recipe

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestParseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := Default(DefaultOptions())
	if err := Render(&buf, want); err != nil {
		t.Fatal(err)
	}

	got, err := Parse(&buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(got.Steps) != len(want.Steps) {
		t.Fatalf("expected %d steps, got %d", len(want.Steps), len(got.Steps))
	}
	for i := range want.Steps {
		if got.Steps[i].String() != want.Steps[i].String() {
			t.Errorf("step %d: expected %q, got %q", i+1, want.Steps[i], got.Steps[i])
		}
	}
	if err := Validate(got); err != nil {
		t.Errorf("parsed default recipe invalid: %v", err)
	}
}

func TestParseLockFileRecipeFailsValidation(t *testing.T) {
	src := `FROM node:18-alpine
WORKDIR /app
COPY package*.json ./
RUN npm ci --only=production
COPY . .
EXPOSE 3000
CMD ["npm", "start"]
`
	r, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	err = Validate(r)
	for _, want := range []string{
		"lock file package-lock.json",
		"is not copied",
		"npm ci requires a lock file",
		"--only=production",
		"bind 0.0.0.0",
		"does not match exposed port 3000",
	} {
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestParseKeepsFlagsAndUnknownInstructions(t *testing.T) {
	src := `FROM node:20-slim
ENV NODE_ENV=development
COPY --chown=node package.json ./
`
	r, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(r.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(r.Steps))
	}
	if r.Steps[1].Kind != "ENV" {
		t.Errorf("expected ENV step, got %s", r.Steps[1].Kind)
	}
	if len(r.Steps[2].Flags) != 1 || r.Steps[2].Flags[0] != "--chown=node" {
		t.Errorf("expected --chown flag, got %v", r.Steps[2].Flags)
	}
	if err := Validate(r); !errors.Is(err, ErrInvalidRecipe) {
		t.Errorf("expected ErrInvalidRecipe, got %v", err)
	}
}

func TestParseShellFormCmd(t *testing.T) {
	r, err := Parse(strings.NewReader("FROM node:20-slim\nCMD npm run dev -- --host 0.0.0.0\n"))
	if err != nil {
		t.Fatal(err)
	}
	if r.Steps[1].JSON {
		t.Error("expected shell form")
	}
	if _, msgs := checkCmd(r.Steps[1]); len(msgs) == 0 || msgs[0] != "command must use exec form" {
		t.Errorf("expected exec form complaint, got %v", msgs)
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := Parse(strings.NewReader("")); !errors.Is(err, ErrInvalidRecipe) {
		t.Errorf("expected ErrInvalidRecipe, got %v", err)
	}
}
