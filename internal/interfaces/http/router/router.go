package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIVersion is the path segment below /api that versions every route
const APIVersion = "v1"

// RouteGroup collects the routes of one area below a common prefix
type RouteGroup struct {
	prefix     string
	middleware []gin.HandlerFunc
	routes     []route
}

type route struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewRouteGroup creates a route group mounted at prefix
func NewRouteGroup(prefix string, middleware ...gin.HandlerFunc) *RouteGroup {
	return &RouteGroup{prefix: prefix, middleware: middleware}
}

func (g *RouteGroup) GET(path string, handlers ...gin.HandlerFunc) *RouteGroup {
	return g.handle(http.MethodGet, path, handlers)
}

func (g *RouteGroup) POST(path string, handlers ...gin.HandlerFunc) *RouteGroup {
	return g.handle(http.MethodPost, path, handlers)
}

func (g *RouteGroup) PUT(path string, handlers ...gin.HandlerFunc) *RouteGroup {
	return g.handle(http.MethodPut, path, handlers)
}

func (g *RouteGroup) PATCH(path string, handlers ...gin.HandlerFunc) *RouteGroup {
	return g.handle(http.MethodPatch, path, handlers)
}

func (g *RouteGroup) DELETE(path string, handlers ...gin.HandlerFunc) *RouteGroup {
	return g.handle(http.MethodDelete, path, handlers)
}

func (g *RouteGroup) handle(method, path string, handlers []gin.HandlerFunc) *RouteGroup {
	g.routes = append(g.routes, route{method: method, path: path, handlers: handlers})
	return g
}

// mount registers every group below /api/{APIVersion}
func mount(engine *gin.Engine, groups ...*RouteGroup) {
	api := engine.Group("/api/" + APIVersion)
	for _, g := range groups {
		rg := api.Group(g.prefix, g.middleware...)
		for _, r := range g.routes {
			rg.Handle(r.method, r.path, r.handlers...)
		}
	}
}
