// Package handle tracks open handles and the resources they refer to.
//
// Several handles may refer to one resource; the resource (its device file and
// logical size) is shared and reference counted, while each handle keeps its
// own cursor. Resources are identified by canonical path.
package handle
