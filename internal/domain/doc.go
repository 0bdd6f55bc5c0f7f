// Package domain models the Spanish administrative hierarchy used to locate a
// place on the map, together with the ports the cascade engine talks to.
//
// # Data Source
//
// Hierarchy data comes from the OpenDataSoft "georef-spain-municipio" dataset.
// Each record is one municipality and carries its full ancestry:
//
//	acom_name     autonomous community (Region), e.g. "Comunidad de Madrid"
//	prov_name     province (Province), e.g. "Madrid"
//	mun_name      municipality (Municipality), e.g. "Alcobendas"
//	geo_point_2d  {"lon": -3.64, "lat": 40.54}, the municipality centroid
//
// Region and Province candidate lists are derived by grouping on acom_name and
// prov_name. Some dataset exports wrap text fields in single-element arrays;
// adapters accept both shapes.
//
// # Levels
//
// The hierarchy is ordered Region > Province > Municipality. Every level except
// Region has exactly one parent. A level may only be selected while its parent
// is selected, except for the atomic write produced by reverse resolution.
//
// # Coordinates
//
// Coordinates are WGS-84 and always carried as (lon, lat), the order used by
// the map and by GeoJSON. Providers that take (lat, lon) convert at the edge.
//
// # Name Resolution
//
// Reverse resolution first maps coordinates to a place name (weather station or
// reverse geocoder), then looks that name up in the hierarchy dataset by exact
// mun_name match. When several municipalities share the name, the first record
// wins. See [HierarchyResolver].
package domain
