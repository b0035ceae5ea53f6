package server

import (
	"sort"
	"strings"
	"time"

	"github.com/gosrf/gosrf"
)

/*
Methods every server exposes alongside the application's own: echo, the
server clock, and method introspection. Their handlers close over the
server's registry, which is immutable once Start has built it.
*/
func (s *Server) systemMethods() []MethodDef {
	return []MethodDef{
		{
			Name:       "opensrf.system.echo",
			Desc:       "Returns every parameter as its own result",
			ParamCount: ParamCountAny(),
			Handler: func(_ ApplicationWorker, ses *Session, call *gosrf.MethodCall) error {
				for _, p := range call.Params {
					if err := ses.Respond(p); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			Name:       "opensrf.system.time",
			Desc:       "Returns the server epoch time in seconds",
			ParamCount: ParamCountZero(),
			Handler: func(_ ApplicationWorker, ses *Session, _ *gosrf.MethodCall) error {
				return ses.Respond(time.Now().Unix())
			},
		},
		{
			Name:       "opensrf.system.method.all",
			Desc:       "Streams a summary of every registered method",
			ParamCount: ParamCountRange(0, 1),
			Params:     []StaticParam{{Name: "prefix", Datatype: ParamString}},
			Handler: func(_ ApplicationWorker, ses *Session, call *gosrf.MethodCall) error {
				prefix := ""
				if len(call.Params) == 1 {
					prefix = call.Params[0].(string)
				}

				names := make([]string, 0, len(s.methods))
				for name := range s.methods {
					if strings.HasPrefix(name, prefix) {
						names = append(names, name)
					}
				}
				sort.Strings(names)

				for _, name := range names {
					if err := ses.Respond(s.methods[name].Summary()); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			Name:       "opensrf.system.method.all.summary",
			Desc:       "Streams the name of every registered method",
			ParamCount: ParamCountRange(0, 1),
			Params:     []StaticParam{{Name: "prefix", Datatype: ParamString}},
			Handler: func(_ ApplicationWorker, ses *Session, call *gosrf.MethodCall) error {
				prefix := ""
				if len(call.Params) == 1 {
					prefix = call.Params[0].(string)
				}

				names := make([]string, 0, len(s.methods))
				for name := range s.methods {
					if strings.HasPrefix(name, prefix) {
						names = append(names, name)
					}
				}
				sort.Strings(names)

				for _, name := range names {
					if err := ses.Respond(name); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
