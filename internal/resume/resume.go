// Package resume loads the read-only resume summary used when composing
// outreach text.
package resume

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/example/outreachbot/internal/models"
)

const maxSkills = 10

type skill struct {
	label string
	re    *regexp.Regexp
}

// boundary treats + # . / as part of a token so "c++" and "ci/cd" match
// whole words only.
func skillRe(pattern string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^a-z0-9+#])` + pattern + `(?:$|[^a-z0-9+#])`)
}

var skills = func() []skill {
	defs := []struct{ label, pattern string }{
		{"Python", `python`},
		{"Java", `java`},
		{"JavaScript", `javascript`},
		{"TypeScript", `typescript`},
		{"C++", `c\+\+`},
		{"C#", `c#`},
		{"Ruby", `ruby`},
		{"Go", `(?:go|golang)`},
		{"PHP", `php`},
		{"Swift", `swift`},
		{"Kotlin", `kotlin`},
		{"Rust", `rust`},
		{"Scala", `scala`},
		{"React", `react`},
		{"Angular", `angular`},
		{"Vue", `vue`},
		{"Node.js", `node\.?js`},
		{"Django", `django`},
		{"Flask", `flask`},
		{"Spring", `spring`},
		{"TensorFlow", `tensorflow`},
		{"PyTorch", `pytorch`},
		{"Keras", `keras`},
		{"Scikit-Learn", `scikit-learn`},
		{"Machine Learning", `machine\s+learning`},
		{"Deep Learning", `deep\s+learning`},
		{"AI", `ai`},
		{"Data Science", `data\s+science`},
		{"NLP", `nlp`},
		{"Computer Vision", `computer\s+vision`},
		{"AWS", `aws`},
		{"Azure", `azure`},
		{"GCP", `(?:gcp|google\s+cloud)`},
		{"Docker", `docker`},
		{"Kubernetes", `(?:kubernetes|k8s)`},
		{"DevOps", `devops`},
		{"CI/CD", `ci/cd`},
		{"SQL", `sql`},
		{"NoSQL", `nosql`},
		{"MongoDB", `mongodb`},
		{"PostgreSQL", `(?:postgresql|postgres)`},
		{"MySQL", `mysql`},
		{"Redis", `redis`},
		{"Git", `git`},
		{"Agile", `agile`},
		{"REST API", `rest\s+apis?`},
		{"GraphQL", `graphql`},
		{"Microservices", `microservices`},
		{"Leadership", `leadership`},
		{"Communication", `communication`},
		{"Problem Solving", `problem\s+solving`},
		{"Project Management", `project\s+management`},
	}
	out := make([]skill, len(defs))
	for i, d := range defs {
		out[i] = skill{label: d.label, re: skillRe(d.pattern)}
	}
	return out
}()

var (
	yearsRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\+?\s*years?\s*(?:of)?\s*experience`)
	roleRe  = regexp.MustCompile(`(?i)\b(?:(senior|junior|lead|staff|principal)\s+)?(?:[a-z]+\s+)?(engineer|developer|scientist|analyst|architect|consultant|specialist)\b`)
)

// Load reads a resume summary. YAML files are decoded directly; .txt and .md
// files are scanned for skills, years of experience and role titles.
func Load(path string) (models.ResumeSummary, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return models.ResumeSummary{}, fmt.Errorf("read resume: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var out models.ResumeSummary
		if err := yaml.Unmarshal(b, &out); err != nil {
			return out, fmt.Errorf("parse resume %s: %w", path, err)
		}
		if len(out.Skills) > maxSkills {
			out.Skills = out.Skills[:maxSkills]
		}
		return out, nil
	case ".txt", ".md", "":
		return Parse(string(b)), nil
	default:
		return models.ResumeSummary{}, fmt.Errorf("unsupported resume format %q (use .txt, .md or .yaml)", filepath.Ext(path))
	}
}

// Parse extracts a summary from free-form resume text.
func Parse(text string) models.ResumeSummary {
	var out models.ResumeSummary
	for _, s := range skills {
		if s.re.MatchString(text) {
			out.Skills = append(out.Skills, s.label)
			if len(out.Skills) == maxSkills {
				break
			}
		}
	}
	if m := yearsRe.FindStringSubmatch(text); m != nil {
		out.YearsExperience, _ = strconv.ParseFloat(m[1], 64)
	}
	seen := map[string]bool{}
	for _, m := range roleRe.FindAllString(text, -1) {
		role := titleCase(strings.Join(strings.Fields(m), " "))
		if seen[role] {
			continue
		}
		seen[role] = true
		out.Roles = append(out.Roles, role)
		if len(out.Roles) == 3 {
			break
		}
	}
	return out
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
