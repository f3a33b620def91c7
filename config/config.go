package config

import (
	"crypto/tls"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shubinmi/phonelist"
	"github.com/shubinmi/util/errs"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	SourceLDAP  = "ldap"
	SourceAgent = "agent"
)

type Config struct {
	Listen string
	Source string
	Filter phonelist.FilterMode
	LDAP   LDAP
	Agent  Agent
	Static []phonelist.Contact
}

type LDAP struct {
	URL                string
	User               string
	Pass               string
	BaseDN             string
	Filter             string
	Attributes         []string
	Timeout            time.Duration
	PageSize           uint32
	InsecureSkipVerify bool
	Debug              bool
}

// Agent configures both ends of the agent bridge. Listen, when set, moves
// the hub off the page listener onto its own address.
type Agent struct {
	ID      string
	Token   string
	Path    string
	Listen  string
	Hub     string
	Timeout time.Duration
}

func defaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("source", SourceLDAP)
	v.SetDefault("filter_mode", string(phonelist.FilterIndependent))
	v.SetDefault("ldap.filter", phonelist.DefaultFilter)
	v.SetDefault("ldap.attributes", phonelist.DefaultAttributes)
	v.SetDefault("ldap.timeout", 5*time.Second)
	v.SetDefault("ldap.page_size", 0)
	v.SetDefault("agent.path", "/agent")
	// dial, bind and an unpaged search take up to one ldap.timeout each
	// on the agent.
	v.SetDefault("agent.timeout", 30*time.Second)
}

// Load reads the config file at path (any format viper knows) and applies
// PHONELIST_* environment overrides, e.g. PHONELIST_LDAP_PASS. An empty
// path means environment and defaults only.
func Load(path string) (*Config, error) {
	v := viper.New()
	defaults(v)
	v.SetEnvPrefix("phonelist")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	c := &Config{
		Listen: v.GetString("listen"),
		Source: strings.ToLower(v.GetString("source")),
		Filter: phonelist.FilterMode(strings.ToLower(v.GetString("filter_mode"))),
		LDAP: LDAP{
			URL:                v.GetString("ldap.url"),
			User:               v.GetString("ldap.user"),
			Pass:               v.GetString("ldap.pass"),
			BaseDN:             v.GetString("ldap.base_dn"),
			Filter:             v.GetString("ldap.filter"),
			Attributes:         v.GetStringSlice("ldap.attributes"),
			Timeout:            v.GetDuration("ldap.timeout"),
			PageSize:           v.GetUint32("ldap.page_size"),
			InsecureSkipVerify: v.GetBool("ldap.insecure_skip_verify"),
			Debug:              v.GetBool("ldap.debug"),
		},
		Agent: Agent{
			ID:      v.GetString("agent.id"),
			Token:   v.GetString("agent.token"),
			Path:    v.GetString("agent.path"),
			Listen:  v.GetString("agent.listen"),
			Hub:     v.GetString("agent.hub"),
			Timeout: v.GetDuration("agent.timeout"),
		},
	}
	static, err := loadStatic(v)
	if err != nil {
		return nil, err
	}
	c.Static = static
	if err = c.valid(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return c, nil
}

// loadStatic prefers static_file over an inline static list; with neither
// the built-in list is used.
func loadStatic(v *viper.Viper) ([]phonelist.Contact, error) {
	if f := v.GetString("static_file"); f != "" {
		return ReadStatic(f)
	}
	if v.IsSet("static") {
		var cs []phonelist.Contact
		if err := v.UnmarshalKey("static", &cs); err != nil {
			return nil, errors.Wrap(err, "static entries")
		}
		return cs, nil
	}
	return phonelist.DefaultStatic, nil
}

// ReadStatic decodes a YAML list of contacts.
func ReadStatic(path string) ([]phonelist.Contact, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read static file")
	}
	var cs []phonelist.Contact
	if err = yaml.Unmarshal(b, &cs); err != nil {
		return nil, errors.Wrapf(err, "decode static file %s", path)
	}
	return cs, nil
}

func (c *Config) valid() (err error) {
	switch c.Source {
	case SourceLDAP, SourceAgent:
	default:
		err = errs.Merge(err, errors.Errorf("source %q, want ldap or agent", c.Source))
	}
	switch c.Filter {
	case phonelist.FilterIndependent, phonelist.FilterCombined:
	default:
		err = errs.Merge(err, errors.Errorf("filter_mode %q, want independent or combined", c.Filter))
	}
	if c.Source == SourceAgent && c.Agent.ID == "" {
		err = errs.Merge(err, errors.New("agent.id is required for the agent source"))
	}
	return
}

func (l LDAP) Query() phonelist.Query {
	return phonelist.Query{
		URL:        l.URL,
		User:       l.User,
		Pass:       l.Pass,
		BaseDN:     l.BaseDN,
		Filter:     l.Filter,
		Attributes: l.Attributes,
	}
}

// Client builds the directory client. It returns nil without error when
// no URL is configured: the page then lists the static entries only.
func (l LDAP) Client(log *zap.Logger) (*phonelist.Client, error) {
	if l.URL == "" {
		return nil, nil
	}
	return phonelist.New(l.Query(),
		phonelist.WithTimeout(l.Timeout),
		phonelist.WithPageSize(l.PageSize),
		phonelist.WithTLSConfig(&tls.Config{InsecureSkipVerify: l.InsecureSkipVerify}), //nolint:gosec
		phonelist.WithDebug(l.Debug),
		phonelist.WithLogger(log),
	)
}
