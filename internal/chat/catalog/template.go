package catalog

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"text/template"

	"gopkg.in/yaml.v3"
)

// TemplateKind distingue as duas formas de resposta do catálogo.
type TemplateKind int

const (
	// TemplateFixed tem um único texto.
	TemplateFixed TemplateKind = iota
	// TemplateRandom sorteia um dos textos a cada uso.
	TemplateRandom
)

// Template é uma resposta do catálogo: texto fixo ou conjunto sorteado.
// No YAML, um escalar vira TemplateFixed e uma lista vira TemplateRandom.
type Template struct {
	Kind  TemplateKind
	Texts []string

	compiled []*template.Template
}

// Fixed cria um template de texto único.
func Fixed(text string) Template {
	return mustCompile(Template{Kind: TemplateFixed, Texts: []string{text}})
}

// Random cria um template sorteado.
func Random(texts ...string) Template {
	return mustCompile(Template{Kind: TemplateRandom, Texts: texts})
}

func mustCompile(t Template) Template {
	if err := t.compile(); err != nil {
		panic(err)
	}
	return t
}

// UnmarshalYAML implementa yaml.Unmarshaler.
func (t *Template) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		t.Kind = TemplateFixed
		t.Texts = []string{node.Value}
	case yaml.SequenceNode:
		var texts []string
		if err := node.Decode(&texts); err != nil {
			return err
		}
		if len(texts) == 0 {
			return fmt.Errorf("line %d: empty response list", node.Line)
		}
		t.Kind = TemplateRandom
		t.Texts = texts
	default:
		return fmt.Errorf("line %d: response must be a string or a list of strings", node.Line)
	}
	return t.compile()
}

func (t *Template) compile() error {
	t.compiled = make([]*template.Template, len(t.Texts))
	for i, text := range t.Texts {
		tpl, err := template.New("").Option("missingkey=zero").Parse(text)
		if err != nil {
			return fmt.Errorf("compiling template %q: %w", text, err)
		}
		t.compiled[i] = tpl
	}
	return nil
}

// Empty é true para o valor zero.
func (t Template) Empty() bool {
	return len(t.Texts) == 0
}

// Pick escolhe o índice do texto a usar. intn segue a assinatura de
// rand.IntN; nil usa o gerador global.
func (t Template) Pick(intn func(int) int) int {
	if t.Kind == TemplateFixed || len(t.Texts) <= 1 {
		return 0
	}
	if intn == nil {
		intn = rand.IntN
	}
	return intn(len(t.Texts))
}

// Render escolhe um texto com Pick e o executa com data.
func (t Template) Render(intn func(int) int, data any) (string, error) {
	if t.Empty() {
		return "", fmt.Errorf("empty template")
	}
	if len(t.compiled) != len(t.Texts) {
		if err := t.compile(); err != nil {
			return "", err
		}
	}
	var buf bytes.Buffer
	if err := t.compiled[t.Pick(intn)].Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering template: %w", err)
	}
	return buf.String(), nil
}
