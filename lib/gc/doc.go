// Package gc implements the four-tier garbage collector spec §4.J
// describes: akey, dkey and object bins live per container, a single
// container bin lives per pool, and a credit-bounded drain cascades
// dead records downward from wherever work is found toward the akey
// leaf tier, where an item's final free actually reclaims heap space.
package gc
