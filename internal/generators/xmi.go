package generators

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"calltree/internal/models"
)

const (
	xmiNamespace = "http://www.omg.org/spec/XMI/20131001"
	umlNamespace = "http://www.eclipse.org/uml2/5.0.0/UML"
)

// XmiGenerator exports a call tree as an XMI UML sequence diagram that UML
// tools (Enterprise Architect, Visual Paradigm) can import.
type XmiGenerator struct {
	// UseModuleNames draws one lifeline per SW module (file-stem fallback)
	// instead of one per function.
	UseModuleNames bool

	idCounter      int
	participantIDs map[string]string
}

// NewXmiGenerator returns a generator with function-level lifelines.
func NewXmiGenerator() *XmiGenerator {
	return &XmiGenerator{}
}

type xmiDocument struct {
	XMLName    xml.Name `xml:"xmi:XMI"`
	XmiVersion string   `xml:"xmi:version,attr"`
	XmlnsXmi   string   `xml:"xmlns:xmi,attr"`
	XmlnsUml   string   `xml:"xmlns:uml,attr"`
	Model      xmiModel `xml:"uml:Model"`
}

type xmiModel struct {
	ID         string     `xml:"xmi:id,attr"`
	Name       string     `xml:"name,attr"`
	Visibility string     `xml:"visibility,attr"`
	Package    xmiPackage `xml:"packagedElement"`
}

type xmiPackage struct {
	ID          string         `xml:"xmi:id,attr"`
	Name        string         `xml:"name,attr"`
	Visibility  string         `xml:"visibility,attr"`
	Interaction xmiInteraction `xml:"packagedElement"`
}

type xmiInteraction struct {
	ID          string        `xml:"xmi:id,attr"`
	Name        string        `xml:"name,attr"`
	Visibility  string        `xml:"visibility,attr"`
	IsReentrant string        `xml:"isReentrant,attr"`
	Lifelines   []xmiLifeline `xml:"lifeline"`
	Fragments   []xmiFragment `xml:"fragment"`
	Messages    []xmiMessage  `xml:"message"`
}

type xmiLifeline struct {
	ID         string `xml:"xmi:id,attr"`
	Name       string `xml:"name,attr"`
	Visibility string `xml:"visibility,attr"`
}

// xmiFragment models an opt or loop combined fragment covering one call.
type xmiFragment struct {
	ID                  string `xml:"xmi:id,attr"`
	Type                string `xml:"xmi:type,attr"`
	InteractionOperator string `xml:"interactionOperator,attr"`
	Guard               string `xml:"guard,attr,omitempty"`
	Covered             string `xml:"covered,attr"`
}

type xmiMessage struct {
	ID           string `xml:"xmi:id,attr"`
	Name         string `xml:"name,attr"`
	Visibility   string `xml:"visibility,attr"`
	MessageSort  string `xml:"messageSort,attr"`
	Signature    string `xml:"signature,attr"`
	SendEvent    string `xml:"sendEvent,attr"`
	ReceiveEvent string `xml:"receiveEvent,attr"`
}

// Generate writes the XMI document to outputPath, creating parent
// directories as needed.
func (g *XmiGenerator) Generate(result *models.AnalysisResult, outputPath string) error {
	content, err := g.GenerateToString(result)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %v", err)
	}
	if err := os.WriteFile(outputPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write XMI file: %v", err)
	}
	return nil
}

// GenerateToString renders the XMI document. A result without a call tree
// cannot be exported.
func (g *XmiGenerator) GenerateToString(result *models.AnalysisResult) (string, error) {
	if result.CallTree == nil {
		return "", fmt.Errorf("cannot generate XMI: call tree is nil")
	}

	g.idCounter = 0
	g.participantIDs = make(map[string]string)

	interaction := xmiInteraction{
		ID:          g.nextID(),
		Name:        "CallSequence_" + result.RootFunction,
		Visibility:  "public",
		IsReentrant: "false",
	}

	for _, participant := range g.collectParticipants(result.CallTree) {
		id := g.nextID()
		g.participantIDs[participant] = id
		interaction.Lifelines = append(interaction.Lifelines, xmiLifeline{
			ID:         id,
			Name:       participant,
			Visibility: "public",
		})
	}

	g.appendMessages(result.CallTree, &interaction)

	doc := xmiDocument{
		XmiVersion: "2.1",
		XmlnsXmi:   xmiNamespace,
		XmlnsUml:   umlNamespace,
		Model: xmiModel{
			ID:         g.nextID(),
			Name:       "CallTree_" + result.RootFunction,
			Visibility: "public",
			Package: xmiPackage{
				ID:          g.nextID(),
				Name:        "Sequence_" + result.RootFunction,
				Visibility:  "public",
				Interaction: interaction,
			},
		},
	}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XMI: %v", err)
	}
	return xml.Header + string(data) + "\n", nil
}

func (g *XmiGenerator) collectParticipants(root *models.CallTreeNode) []string {
	var participants []string
	seen := make(map[string]struct{})

	var walk func(n *models.CallTreeNode)
	walk = func(n *models.CallTreeNode) {
		name := g.participantFor(n.FunctionInfo)
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			participants = append(participants, name)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	return participants
}

func (g *XmiGenerator) participantFor(fn *models.FunctionInfo) string {
	if g.UseModuleNames {
		if fn.SwModule != "" {
			return fn.SwModule
		}
		return models.FileStem(fn.FilePath)
	}
	return fn.Name
}

// appendMessages emits one synchCall message per call edge, plus an opt or
// loop fragment for edges carrying conditional or loop context.
func (g *XmiGenerator) appendMessages(node *models.CallTreeNode, interaction *xmiInteraction) {
	caller := g.participantFor(node.FunctionInfo)

	for _, child := range node.Children {
		callee := g.participantFor(child.FunctionInfo)

		if child.IsLoop || child.IsOptional {
			operator := "opt"
			guard := child.Condition
			if child.IsLoop {
				operator = "loop"
				guard = child.LoopCondition
			}
			interaction.Fragments = append(interaction.Fragments, xmiFragment{
				ID:                  g.nextID(),
				Type:                "uml:CombinedFragment",
				InteractionOperator: operator,
				Guard:               guard,
				Covered:             g.participantIDs[callee],
			})
		}

		sort := "synchCall"
		if child.IsRecursive {
			sort = "reply"
		}
		interaction.Messages = append(interaction.Messages, xmiMessage{
			ID:           g.nextID(),
			Name:         child.FunctionInfo.Name,
			Visibility:   "public",
			MessageSort:  sort,
			Signature:    messageSignature(child.FunctionInfo),
			SendEvent:    g.participantIDs[caller],
			ReceiveEvent: g.participantIDs[callee],
		})

		g.appendMessages(child, interaction)
	}
}

func messageSignature(fn *models.FunctionInfo) string {
	if len(fn.Parameters) == 0 {
		return fn.Name + "()"
	}
	parts := make([]string, 0, len(fn.Parameters))
	for _, p := range fn.Parameters {
		if p.Name != "" {
			parts = append(parts, p.Name)
			continue
		}
		typ := p.Type
		if p.IsPointer && !strings.HasSuffix(typ, "*") {
			typ += "*"
		}
		parts = append(parts, typ)
	}
	return fmt.Sprintf("%s(%s)", fn.Name, strings.Join(parts, ", "))
}

func (g *XmiGenerator) nextID() string {
	g.idCounter++
	return fmt.Sprintf("calltree_%d", g.idCounter)
}
