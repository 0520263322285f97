package bazel

// XML structures of `bazel query --output=xml`

type queryXML struct {
	Rules          []ruleXML          `xml:"rule"`
	SourceFiles    []fileXML          `xml:"source-file"`
	GeneratedFiles []generatedFileXML `xml:"generated-file"`
}

type ruleXML struct {
	Class    string    `xml:"class,attr"`
	Name     string    `xml:"name,attr"`
	Location string    `xml:"location,attr"`
	Strings  []attrXML `xml:"string"`
	Labels   []attrXML `xml:"label"`
	Lists    []listXML `xml:"list"`
	Outputs  []fileXML `xml:"rule-output"`
}

type attrXML struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type listXML struct {
	Name    string    `xml:"name,attr"`
	Labels  []attrXML `xml:"label"`
	Strings []attrXML `xml:"string"`
}

type fileXML struct {
	Name     string `xml:"name,attr"`
	Location string `xml:"location,attr"`
}

type generatedFileXML struct {
	Name           string `xml:"name,attr"`
	GeneratingRule string `xml:"generating-rule,attr"`
	Location       string `xml:"location,attr"`
}

func (r *ruleXML) stringAttr(name string) string {
	for _, s := range r.Strings {
		if s.Name == name {
			return s.Value
		}
	}
	for _, l := range r.Labels {
		if l.Name == name {
			return l.Value
		}
	}
	return ""
}

func (r *ruleXML) labelList(name string) []string {
	var out []string
	for _, list := range r.Lists {
		if list.Name != name {
			continue
		}
		for _, l := range list.Labels {
			out = append(out, l.Value)
		}
	}
	return out
}

func (r *ruleXML) stringList(name string) []string {
	var out []string
	for _, list := range r.Lists {
		if list.Name != name {
			continue
		}
		for _, s := range list.Strings {
			out = append(out, s.Value)
		}
	}
	return out
}
